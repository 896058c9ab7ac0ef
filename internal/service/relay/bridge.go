package relay

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	relaymodel "github.com/Wint-hazel/Purify-our-mind-sub000/backend/internal/model/relay"
)

// Bridge 将一条下游连接与一条上游会话配对，在两个方向之间搬运信封。
//
// 每个方向一个泵 goroutine，方向内严格保序，方向之间无顺序约束。
// 任一侧关闭或出错都会使另一侧被关闭；关闭是幂等的。
// 转发失败不重试、不缓存重投，按传输错误处理并拆除两侧。
type Bridge struct {
	session *Session
	up      *UpstreamClient

	readyTimeout time.Duration

	downWriteMu sync.Mutex

	mu         sync.Mutex
	closed     bool
	readyTimer *time.Timer
}

// NewBridge 将会话的下游连接与已建连的上游客户端配对。
func NewBridge(session *Session, up *UpstreamClient, readyTimeout time.Duration) *Bridge {
	session.BindUpstream(up)
	return &Bridge{
		session:      session,
		up:           up,
		readyTimeout: readyTimeout,
	}
}

// Run 启动双向转发并阻塞到两侧都结束。
func (b *Bridge) Run() {
	if b.readyTimeout > 0 {
		b.mu.Lock()
		if !b.closed {
			b.readyTimer = time.AfterFunc(b.readyTimeout, func() {
				log.Printf("[relay] session=%s upstream not ready within %s", b.session.ID, b.readyTimeout)
				b.fail("upstream session was not ready in time")
			})
		}
		b.mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.pumpDownstream()
	}()
	go func() {
		defer wg.Done()
		b.pumpUpstream()
	}()
	wg.Wait()
}

// Close 拆除桥两侧的连接。可安全地重复调用。
func (b *Bridge) Close() {
	b.shutdown()
}

// pumpDownstream 将客户端的帧原样送往上游。不校验负载形状，
// 畸形帧由上游自行拒绝。
func (b *Bridge) pumpDownstream() {
	for {
		_, raw, err := b.session.Downstream.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[relay] session=%s downstream read error: %v", b.session.ID, err)
			}
			// 下游断开即为上游的取消信号，无需错误信封：接收方已离场。
			b.shutdown()
			return
		}

		if err := b.up.Send(raw); err != nil {
			b.fail("upstream connection lost")
			return
		}
	}
}

// pumpUpstream 将上游信封原样转发给客户端，同时识别触发会话配置的
// 就绪事件。转发与配置互相独立：两者都必须发生，转发从不等待配置。
func (b *Bridge) pumpUpstream() {
	for {
		raw, err := b.up.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.shutdown()
			} else {
				b.fail("upstream connection lost")
			}
			return
		}

		env := relaymodel.ParseEnvelope(raw)
		switch env.Type {
		case relaymodel.EventSessionCreated:
			if b.session.MarkConfigured() {
				b.stopReadyTimer()
				if err := b.up.Configure(); err != nil {
					log.Printf("[relay] session=%s failed to configure upstream: %v", b.session.ID, err)
					b.fail("failed to configure upstream session")
					return
				}
				log.Printf("[relay] session=%s upstream session configured", b.session.ID)
			}
		case relaymodel.EventResponseTranscriptDelta:
			b.session.AppendTranscript(env.Delta)
		case relaymodel.EventResponseTranscriptDone:
			if text := b.session.FlushTranscript(); text != "" {
				log.Printf("[relay] session=%s transcript complete chars=%d", b.session.ID, len(text))
			}
		}

		if err := b.writeDownstream(raw); err != nil {
			b.shutdown()
			return
		}
	}
}

func (b *Bridge) writeDownstream(raw []byte) error {
	b.downWriteMu.Lock()
	defer b.downWriteMu.Unlock()
	return b.session.Downstream.WriteMessage(websocket.TextMessage, raw)
}

// fail 向下游发送单个错误信封，然后拆除两侧。已关闭的桥上是空操作，
// 因此错误信封至多发出一次。
func (b *Bridge) fail(message string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if b.readyTimer != nil {
		b.readyTimer.Stop()
	}
	b.mu.Unlock()

	if err := b.writeDownstream(relaymodel.ErrorEnvelope(message)); err != nil {
		log.Printf("[relay] session=%s failed to deliver error envelope: %v", b.session.ID, err)
	}
	b.closeBoth()
}

// shutdown 幂等地关闭两侧连接。
func (b *Bridge) shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if b.readyTimer != nil {
		b.readyTimer.Stop()
	}
	b.mu.Unlock()

	b.closeBoth()
}

func (b *Bridge) closeBoth() {
	_ = b.session.Downstream.Close()
	_ = b.up.Close()
	log.Printf("[relay] session=%s closed", b.session.ID)
}

func (b *Bridge) stopReadyTimer() {
	b.mu.Lock()
	if b.readyTimer != nil {
		b.readyTimer.Stop()
		b.readyTimer = nil
	}
	b.mu.Unlock()
}
