package cache_test

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/angeloszaimis/wp-fastproxy/internal/cache"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
)

var _ = Describe("RedisStore", func() {
	var (
		server *miniredis.Miniredis
		store  *cache.RedisStore
		ctx    context.Context
	)

	BeforeEach(func() {
		var err error
		server, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(server.Close)

		store = cache.NewRedisStore(redis.NewClient(&redis.Options{
			Addr:        server.Addr(),
			DialTimeout: 100 * time.Millisecond,
			MaxRetries:  -1,
		}))
		DeferCleanup(store.Close)
		ctx = context.Background()
	})

	It("should report a missing key as absent", func() {
		_, found, err := store.Get(ctx, "wp:/missing")

		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
	})

	It("should store the value with its TTL", func() {
		Expect(store.Set(ctx, "wp:/wp/v2/pages", []byte(`[]`), 300*time.Second)).To(Succeed())

		stored, err := server.Get("wp:/wp/v2/pages")
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(Equal(`[]`))
		Expect(server.TTL("wp:/wp/v2/pages")).To(Equal(300 * time.Second))

		value, found, err := store.Get(ctx, "wp:/wp/v2/pages")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(string(value)).To(Equal(`[]`))
	})

	It("should treat an expired entry as absent", func() {
		Expect(store.Set(ctx, "k", []byte(`1`), 300*time.Second)).To(Succeed())
		server.FastForward(301 * time.Second)

		_, found, err := store.Get(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
	})

	It("should answer Ping", func() {
		Expect(store.Ping(ctx)).To(Succeed())
	})

	Context("when the server is down", func() {
		BeforeEach(func() {
			server.Close()
		})

		It("should wrap read errors as unavailable", func() {
			_, found, err := store.Get(ctx, "k")

			Expect(err).To(MatchError(cache.ErrUnavailable))
			Expect(found).To(BeFalse())
		})

		It("should wrap write errors as unavailable", func() {
			err := store.Set(ctx, "k", []byte(`1`), time.Minute)

			Expect(err).To(MatchError(cache.ErrUnavailable))
		})
	})
})
