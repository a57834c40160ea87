package origin_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/wp-fastproxy/internal/origin"
)

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	Expect(err).NotTo(HaveOccurred())
	return u
}

var _ = Describe("Client", func() {
	var (
		server      *httptest.Server
		handlerFunc http.HandlerFunc
		client      *origin.Client
		ctx         context.Context
	)

	BeforeEach(func() {
		handlerFunc = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerFunc(w, r)
		}))
		DeferCleanup(server.Close)

		client = origin.New(mustParseURL(server.URL+"/wp-json"), origin.Options{Timeout: time.Second})
		ctx = context.Background()
	})

	Describe("Fetch", func() {
		It("should GET base plus path verbatim", func() {
			var gotURI, gotAccept string
			handlerFunc = func(w http.ResponseWriter, r *http.Request) {
				gotURI = r.URL.RequestURI()
				gotAccept = r.Header.Get("Accept")
				w.Write([]byte(`[{"id":1}]`))
			}

			body, err := client.Fetch(ctx, "/wp/v2/posts?per_page=5&page=2")

			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal(`[{"id":1}]`))
			Expect(gotURI).To(Equal("/wp-json/wp/v2/posts?per_page=5&page=2"))
			Expect(gotAccept).To(Equal("application/json"))
		})

		It("should request the base itself for the root path", func() {
			var gotPath string
			handlerFunc = func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				w.Write([]byte(`{"name":"site"}`))
			}

			_, err := client.Fetch(ctx, "/")

			Expect(err).NotTo(HaveOccurred())
			Expect(gotPath).To(Equal("/wp-json/"))
		})

		It("should return the body byte for byte", func() {
			raw := "{ \"title\" : \"café\" ,\n \"n\": 1.50 }"
			handlerFunc = func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(raw))
			}

			body, err := client.Fetch(ctx, "/x")

			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal(raw))
		})

		Context("when the origin answers non-2xx", func() {
			It("should return a StatusError that matches ErrTransport", func() {
				handlerFunc = func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusBadGateway)
					w.Write([]byte(`{"code":"bad"}`))
				}

				_, err := client.Fetch(ctx, "/x")

				var statusErr *origin.StatusError
				Expect(errors.As(err, &statusErr)).To(BeTrue())
				Expect(statusErr.Code).To(Equal(http.StatusBadGateway))
				Expect(err).To(MatchError(origin.ErrTransport))
			})

			It("should treat 404 as a failure too", func() {
				handlerFunc = http.NotFound

				_, err := client.Fetch(ctx, "/missing")

				Expect(err).To(MatchError(origin.ErrTransport))
			})
		})

		Context("when the body is not JSON", func() {
			It("should return ErrMalformedBody", func() {
				handlerFunc = func(w http.ResponseWriter, r *http.Request) {
					w.Write([]byte(`<html>maintenance</html>`))
				}

				_, err := client.Fetch(ctx, "/x")

				Expect(err).To(MatchError(origin.ErrMalformedBody))
				Expect(err).To(MatchError(origin.ErrTransport))
			})

			It("should reject an empty body", func() {
				handlerFunc = func(w http.ResponseWriter, r *http.Request) {}

				_, err := client.Fetch(ctx, "/x")

				Expect(err).To(MatchError(origin.ErrMalformedBody))
			})
		})

		Context("when the origin is unreachable", func() {
			It("should return ErrTransport", func() {
				server.Close()

				_, err := client.Fetch(ctx, "/x")

				Expect(err).To(MatchError(origin.ErrTransport))
			})
		})

		Context("when the context expires", func() {
			It("should give up and return ErrTransport wrapping the deadline", func() {
				handlerFunc = func(w http.ResponseWriter, r *http.Request) {
					select {
					case <-r.Context().Done():
					case <-time.After(time.Second):
					}
				}
				short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
				defer cancel()

				_, err := client.Fetch(short, "/slow")

				Expect(err).To(MatchError(origin.ErrTransport))
				Expect(err).To(MatchError(context.DeadlineExceeded))
			})
		})

		It("should feed the response time average", func() {
			Expect(client.EWMATime()).To(BeZero())

			_, err := client.Fetch(ctx, "/x")

			Expect(err).NotTo(HaveOccurred())
			Expect(client.EWMATime()).To(BeNumerically(">", 0))
		})
	})

	Describe("Probe", func() {
		It("should succeed on 2xx", func() {
			handlerFunc = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}

			Expect(client.Probe(ctx, "/")).To(Succeed())
		})

		It("should fail on 5xx", func() {
			handlerFunc = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}

			Expect(client.Probe(ctx, "/")).To(MatchError(origin.ErrTransport))
		})
	})

	Describe("Health flag", func() {
		It("should start healthy", func() {
			Expect(client.IsHealthy()).To(BeTrue())
		})

		It("should report only real changes", func() {
			Expect(client.SetHealthy(true)).To(BeFalse())
			Expect(client.SetHealthy(false)).To(BeTrue())
			Expect(client.IsHealthy()).To(BeFalse())
			Expect(client.SetHealthy(false)).To(BeFalse())
		})

		It("should be thread-safe", func() {
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func(healthy bool) {
					defer wg.Done()
					client.SetHealthy(healthy)
					_ = client.IsHealthy()
				}(i%2 == 0)
			}
			wg.Wait()
		})
	})

	Describe("RecordResponse", func() {
		It("should take the first sample as is", func() {
			client.RecordResponse(100 * time.Millisecond)
			Expect(client.EWMATime()).To(Equal(100 * time.Millisecond))
		})

		It("should smooth later samples", func() {
			client.RecordResponse(100 * time.Millisecond)
			client.RecordResponse(200 * time.Millisecond)

			Expect(client.EWMATime()).To(BeNumerically("~", 120*time.Millisecond, time.Microsecond))
		})
	})
})
