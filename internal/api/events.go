package api

import "sync"

// modelsHub fans out model directory listings to SSE clients.
type modelsHub struct {
	mu   sync.Mutex
	next int
	subs map[int]chan []string
}

func newModelsHub() *modelsHub {
	return &modelsHub{subs: make(map[int]chan []string)}
}

func (h *modelsHub) subscribe() (<-chan []string, func()) {
	ch := make(chan []string, 1)
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// publish replaces any listing a slow client has not consumed yet.
func (h *modelsHub) publish(models []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- models:
		default:
		}
	}
}
