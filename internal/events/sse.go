package events

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const keepAliveInterval = 15 * time.Second

// SSEHandler streams broker events as text/event-stream. Clients pick feeds
// with ?feeds=tabs,overlay. The optional snapshot func writes the current
// state of each feed first so a reconnecting shell starts consistent.
func SSEHandler(broker *Broker, snapshot func() []Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		var feeds []string
		if q := r.URL.Query().Get("feeds"); q != "" {
			for _, f := range strings.Split(q, ",") {
				if f = strings.TrimSpace(f); f != "" {
					feeds = append(feeds, f)
				}
			}
		}
		wanted := func(feed string) bool {
			if len(feeds) == 0 {
				return true
			}
			for _, f := range feeds {
				if f == feed {
					return true
				}
			}
			return false
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, ch := broker.Subscribe(feeds...)
		defer broker.Unsubscribe(id)

		if snapshot != nil {
			for _, evt := range snapshot() {
				if wanted(evt.Feed) {
					writeEvent(w, evt)
				}
			}
		}
		flusher.Flush()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			case evt, ok := <-ch:
				if !ok {
					return
				}
				writeEvent(w, evt)
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, evt Event) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Feed, evt.Payload)
}
