package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"vote-ledger/models"
)

const (
	feedWriteTimeout = 5 * time.Second
	feedQueueSize    = 256
)

// BlockFeed pushes every appended block to connected websocket clients as
// {"type":"block","data":<block>}. Blocks are queued and sent from a separate
// goroutine, so a slow client never holds up the ledger.
type BlockFeed struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	server    *http.Server

	queue     chan models.Block
	done      chan struct{}
	sendWg    sync.WaitGroup
	closeOnce sync.Once
}

func NewBlockFeed() *BlockFeed {
	f := &BlockFeed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*websocket.Conn]bool),
		queue:   make(chan models.Block, feedQueueSize),
		done:    make(chan struct{}),
	}
	f.sendWg.Add(1)
	go f.sender()
	return f
}

// PublishBlock queues block for broadcast and never blocks. When the queue is
// full the block is dropped from the feed; the ledger still has it.
func (f *BlockFeed) PublishBlock(block models.Block) {
	select {
	case <-f.done:
		return
	default:
	}

	select {
	case f.queue <- block:
	default:
		log.Printf("Block feed queue full, dropping block %d", block.Index)
	}
}

func (f *BlockFeed) sender() {
	defer f.sendWg.Done()

	for {
		select {
		case <-f.done:
			return
		case block := <-f.queue:
			f.broadcast("block", block)
		}
	}
}

func (f *BlockFeed) broadcast(msgType string, data interface{}) {
	message, err := json.Marshal(map[string]interface{}{
		"type": msgType,
		"data": data,
	})
	if err != nil {
		log.Printf("Error marshaling feed message: %v", err)
		return
	}

	f.clientsMu.Lock()
	defer f.clientsMu.Unlock()

	for client := range f.clients {
		client.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
		if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("Error sending to feed client: %v", err)
			client.Close()
			delete(f.clients, client)
		}
	}
}

func (f *BlockFeed) ClientCount() int {
	f.clientsMu.Lock()
	defer f.clientsMu.Unlock()
	return len(f.clients)
}

func (f *BlockFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Feed upgrade error: %v", err)
		return
	}

	f.clientsMu.Lock()
	f.clients[conn] = true
	f.clientsMu.Unlock()
	log.Printf("Feed client connected from %s", r.RemoteAddr)

	// The feed is one-way; reading only detects the close.
	go func() {
		defer func() {
			f.clientsMu.Lock()
			delete(f.clients, conn)
			f.clientsMu.Unlock()
			conn.Close()
			log.Printf("Feed client disconnected")
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("Feed read error: %v", err)
				}
				return
			}
		}
	}()
}

// Start serves the feed at /ws on its own port.
func (f *BlockFeed) Start(port int) {
	mux := http.NewServeMux()
	mux.Handle("/ws", f)
	f.server = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		log.Printf("Starting block feed on %s", f.server.Addr)
		if err := f.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Block feed server error: %v", err)
		}
	}()
}

// Close stops the sender and the listener, if started, and disconnects every
// client. Queued blocks not yet sent are dropped.
func (f *BlockFeed) Close(ctx context.Context) error {
	f.closeOnce.Do(func() { close(f.done) })
	f.sendWg.Wait()

	var err error
	if f.server != nil {
		err = f.server.Shutdown(ctx)
	}

	f.clientsMu.Lock()
	defer f.clientsMu.Unlock()
	for client := range f.clients {
		client.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		client.Close()
		delete(f.clients, client)
	}
	return err
}
