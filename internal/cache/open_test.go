package cache_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/alicebob/miniredis/v2"
	"github.com/angeloszaimis/wp-fastproxy/internal/cache"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Open", func() {
	var (
		logger *slog.Logger
		ctx    context.Context
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		ctx = context.Background()
	})

	It("should open a Redis store", func() {
		server := miniredis.RunT(GinkgoT())

		store, err := cache.Open(ctx, "redis://"+server.Addr()+"/0", logger)
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		Expect(store).To(BeAssignableToTypeOf(&cache.RedisStore{}))
	})

	It("should tolerate an unreachable Redis", func() {
		store, err := cache.Open(ctx, "redis://127.0.0.1:1/0", logger)
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		Expect(store).To(BeAssignableToTypeOf(&cache.RedisStore{}))
	})

	It("should open a SQLite file store", func() {
		path := filepath.Join(GinkgoT().TempDir(), "proxy.db")

		store, err := cache.Open(ctx, "sqlite://"+path, logger)
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		Expect(store).To(BeAssignableToTypeOf(&cache.SQLiteStore{}))
		Expect(path).To(BeAnExistingFile())
	})

	It("should open an in-memory SQLite store", func() {
		store, err := cache.Open(ctx, "sqlite::memory:", logger)
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		Expect(store).To(BeAssignableToTypeOf(&cache.SQLiteStore{}))
	})

	It("should open a map store", func() {
		store, err := cache.Open(ctx, "memory://", logger)
		Expect(err).NotTo(HaveOccurred())

		Expect(store).To(BeAssignableToTypeOf(&cache.MemoryStore{}))
	})

	It("should reject unknown schemes", func() {
		_, err := cache.Open(ctx, "memcached://localhost:11211", logger)

		Expect(err).To(MatchError(ContainSubstring("unsupported cache backend")))
	})
})
