// origin is a fake WordPress REST API for exercising the proxy by hand.
// It serves a few JSON documents under /wp-json and can be told to fail or
// slow down at runtime.
//
// Usage:
//
//	go run ./scripts/origin -port 8081
//	curl 'localhost:8081/__control?fail=true'      # answer 500 from now on
//	curl 'localhost:8081/__control?delay=5s'        # sleep before answering
//	curl 'localhost:8081/__control?fail=false&delay=0s'
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type post struct {
	ID      int               `json:"id"`
	Slug    string            `json:"slug"`
	Title   map[string]string `json:"title"`
	Content map[string]string `json:"content"`
}

type controls struct {
	mutex sync.RWMutex
	fail  bool
	delay time.Duration
}

func (c *controls) get() (bool, time.Duration) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.fail, c.delay
}

func main() {
	port := flag.Int("port", 8081, "port to listen on")
	flag.Parse()

	posts := make([]post, 0, 10)
	for i := 1; i <= 10; i++ {
		posts = append(posts, post{
			ID:      i,
			Slug:    fmt.Sprintf("post-%d", i),
			Title:   map[string]string{"rendered": fmt.Sprintf("Post %d", i)},
			Content: map[string]string{"rendered": fmt.Sprintf("<p>Body of post %d</p>", i)},
		})
	}

	var ctl controls
	var served atomic.Int64

	mux := http.NewServeMux()

	mux.HandleFunc("/__control", func(w http.ResponseWriter, r *http.Request) {
		ctl.mutex.Lock()
		if v := r.URL.Query().Get("fail"); v != "" {
			ctl.fail, _ = strconv.ParseBool(v)
		}
		if v := r.URL.Query().Get("delay"); v != "" {
			ctl.delay, _ = time.ParseDuration(v)
		}
		fail, delay := ctl.fail, ctl.delay
		ctl.mutex.Unlock()

		log.Printf("controls: fail=%t delay=%s", fail, delay)
		writeJSON(w, http.StatusOK, map[string]any{
			"fail":   fail,
			"delay":  delay.String(),
			"served": served.Load(),
		})
	})

	mux.HandleFunc("/wp-json/", func(w http.ResponseWriter, r *http.Request) {
		fail, delay := ctl.get()
		if delay > 0 {
			time.Sleep(delay)
		}

		n := served.Add(1)
		log.Printf("request #%d: %s %s", n, r.Method, r.URL.RequestURI())

		if fail {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"code": "internal_server_error"})
			return
		}

		path := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/wp-json"), "/")
		switch {
		case path == "":
			writeJSON(w, http.StatusOK, map[string]any{
				"name":       "Fake WordPress",
				"namespaces": []string{"wp/v2"},
			})
		case path == "/wp/v2/posts":
			writeJSON(w, http.StatusOK, posts)
		case strings.HasPrefix(path, "/wp/v2/posts/"):
			id, err := strconv.Atoi(strings.TrimPrefix(path, "/wp/v2/posts/"))
			if err != nil || id < 1 || id > len(posts) {
				writeJSON(w, http.StatusNotFound, map[string]string{"code": "rest_post_invalid_id"})
				return
			}
			writeJSON(w, http.StatusOK, posts[id-1])
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"code": "rest_no_route"})
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if fail, _ := ctl.get(); fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("starting fake origin on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
