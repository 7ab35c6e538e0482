package transport

import (
	"bytes"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"fleetlink/config"
	linkerrors "fleetlink/errors"
	linklog "fleetlink/log"
	"fleetlink/protocol"
	"fleetlink/status"
)

const (
	readChunkSize    = 4096
	readPollInterval = 1 * time.Second
)

type Config struct {
	Endpoint    config.Endpoint
	DialTimeout time.Duration
	SendTimeout time.Duration
}

// Handlers 会话回调集合。OnFrame 在接收 goroutine 上同步调用，帧按线序到达；
// OnDisconnect 仅在非主动断开时触发，每条连接至多一次。
type Handlers struct {
	OnFrame      func(protocol.Frame)
	OnDisconnect func(err error)
	OnParseError func(err error)
}

const (
	stateDisconnected int32 = iota
	stateConnecting
	stateConnected
)

// Session 持有到地面中心的一条双向字节流连接。
// 约束：
// - 同一时刻至多一条活动连接
// - 任何 I/O 错误或对端关闭都会转入 Disconnected
// - Send 不会因网络背压长时间阻塞（写超时后快速失败）
type Session struct {
	cfg      Config
	handlers Handlers

	mu     sync.Mutex
	conn   net.Conn
	stopCh chan struct{}

	st           atomic.Int32
	lastActivity atomic.Int64

	wg sync.WaitGroup
}

// NewSession 创建一个未连接的传输会话。
// 参数：
// - cfg: 端点与超时配置
// - handlers: 帧/断开/解析错误回调
func NewSession(cfg Config, handlers Handlers) *Session {
	s := &Session{cfg: cfg, handlers: handlers}
	s.st.Store(stateDisconnected)
	return s
}

// Connect 建立连接并启动后台接收 goroutine（幂等：已连接时直接返回 nil）。
// 参数：
// - ctx: 上下文（可取消拨号）
// 返回：
// - error: ConnectionFailed/ConnectionTimeout
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	s.st.Store(stateConnecting)
	conn, err := DialEndpoint(ctx, s.cfg.Endpoint, s.cfg.DialTimeout)
	if err != nil {
		s.st.Store(stateDisconnected)
		return err
	}
	stopCh := make(chan struct{})
	s.conn = conn
	s.stopCh = stopCh
	s.touch()
	s.st.Store(stateConnected)
	s.wg.Add(1)
	go s.receiveLoop(conn, stopCh)
	return nil
}

// Send 将帧编码后写入连接。
// 约束：
// - 未连接或写失败返回 SendFailed；写失败会同时关闭连接（接收侧随后感知断开并上报）
// 参数：
// - f: 待发送帧
func (s *Session) Send(f protocol.Frame) error {
	if s.st.Load() != stateConnected {
		return linkerrors.New(linkerrors.CodeSendFailed, "session not connected")
	}
	b, err := protocol.EncodeFrame(f)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return linkerrors.New(linkerrors.CodeSendFailed, "session not connected")
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.SendTimeout))
	_, werr := s.conn.Write(b)
	_ = s.conn.SetWriteDeadline(time.Time{})
	if werr != nil {
		_ = s.conn.Close()
		return linkerrors.Wrap(linkerrors.CodeSendFailed, "write frame", werr)
	}
	s.touch()
	return nil
}

// Disconnect 主动关闭连接（幂等）。主动断开不会触发 OnDisconnect。
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	close(s.stopCh)
	_ = s.conn.Close()
	s.conn = nil
	s.st.Store(stateDisconnected)
}

// Close 主动断开并等待接收 goroutine 完全退出（用于确定性停机）。
func (s *Session) Close() {
	s.Disconnect()
	s.wg.Wait()
}

// State 返回当前链路状态（无副作用）。
func (s *Session) State() status.LinkState {
	switch s.st.Load() {
	case stateConnecting:
		return status.LinkConnecting
	case stateConnected:
		return status.LinkConnected
	default:
		return status.LinkDisconnected
	}
}

// LastActivity 返回最近一次收发数据的时间。
func (s *Session) LastActivity() time.Time {
	ns := s.lastActivity.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Endpoint 返回会话配置的中心端点。
func (s *Session) Endpoint() config.Endpoint { return s.cfg.Endpoint }

// DialTimeout 返回会话配置的拨号超时。
func (s *Session) DialTimeout() time.Duration { return s.cfg.DialTimeout }

func (s *Session) touch() { s.lastActivity.Store(time.Now().UnixNano()) }

// receiveLoop 后台接收循环：
// - 以短读超时轮询，超时后检查停止信号再继续（保证 stop 的确定性）
// - 按 '\n' 切分累积缓冲，只把完整帧交给 OnFrame；残帧跨多次读时留在缓冲内
func (s *Session) receiveLoop(conn net.Conn, stopCh chan struct{}) {
	defer s.wg.Done()

	var pending []byte
	buf := make([]byte, readChunkSize)

	for {
		select {
		case <-stopCh:
			s.finish(conn, stopCh, nil)
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, err := conn.Read(buf)
		if n > 0 {
			s.touch()
			pending = append(pending, buf[:n]...)
			pending = s.drainFrames(pending)
			if len(pending) > protocol.MaxFrameSize {
				// 没有分隔符的超长数据只能整体丢弃，否则缓冲会无界增长
				s.reportParseError(linkerrors.New(linkerrors.CodeMessageParse, "oversized frame discarded"))
				pending = pending[:0]
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.finish(conn, stopCh, err)
			return
		}
	}
}

// drainFrames 从累积缓冲中切出所有完整行并逐帧分发，返回剩余的残帧字节。
func (s *Session) drainFrames(pending []byte) []byte {
	for {
		i := bytes.IndexByte(pending, '\n')
		if i < 0 {
			return pending
		}
		line := pending[:i]
		pending = pending[i+1:]
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		f, err := protocol.DecodeFrame(line)
		if err != nil {
			s.reportParseError(err)
			continue
		}
		if s.handlers.OnFrame != nil {
			s.handlers.OnFrame(f)
		}
	}
}

// finish 收尾一条连接：仅清理属于自己的连接，并在非主动断开时触发 OnDisconnect。
func (s *Session) finish(conn net.Conn, stopCh chan struct{}, cause error) {
	_ = conn.Close()
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.st.Store(stateDisconnected)
	}
	s.mu.Unlock()

	select {
	case <-stopCh:
		return
	default:
	}
	if s.handlers.OnDisconnect != nil {
		s.handlers.OnDisconnect(cause)
	}
}

func (s *Session) reportParseError(err error) {
	linklog.With(map[string]any{"endpoint": s.cfg.Endpoint.String()}).
		WithError(err).Warn("丢弃无法解析的帧")
	if s.handlers.OnParseError != nil {
		s.handlers.OnParseError(err)
	}
}
