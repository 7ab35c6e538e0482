package transport

import (
	"context"
	"net"
	"time"

	srt "github.com/datarhei/gosrt"

	"fleetlink/config"
	linkerrors "fleetlink/errors"
)

// DialEndpoint 按端点 scheme 建立到地面中心的底层连接。
// 参数：
// - ctx: 上下文（可取消拨号）
// - ep: 中心端点（tcp/srt）
// - timeout: 拨号超时时间
// 返回：
// - net.Conn: 已建立的连接
// - error: ConnectionFailed（拒绝/不可达）或 ConnectionTimeout（超时）
func DialEndpoint(ctx context.Context, ep config.Endpoint, timeout time.Duration) (net.Conn, error) {
	switch ep.Scheme {
	case "tcp":
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", ep.Addr())
		if err != nil {
			return nil, classifyDialError(ep, err)
		}
		return conn, nil

	case "srt":
		scfg := srt.DefaultConfig()
		scfg.PeerIdleTimeout = 8 * time.Second
		return dialSRT(ctx, ep, scfg, timeout)

	default:
		return nil, linkerrors.New(linkerrors.CodeConnectionFailed, "unsupported scheme: "+ep.Scheme)
	}
}

// dialSRT 在独立 goroutine 中执行 SRT 拨号并施加超时（goSRT 自身不接受 Context）。
func dialSRT(ctx context.Context, ep config.Endpoint, scfg srt.Config, timeout time.Duration) (net.Conn, error) {
	type dialResult struct {
		conn srt.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		c, err := srt.Dial("srt", ep.Addr(), scfg)
		resultCh <- dialResult{conn: c, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-resultCh:
		if r.err != nil {
			return nil, classifyDialError(ep, r.err)
		}
		return r.conn, nil
	case <-timer.C:
		go func() {
			if r := <-resultCh; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, linkerrors.New(linkerrors.CodeConnectionTimeout, "dial "+ep.String()+" timed out")
	case <-ctx.Done():
		go func() {
			if r := <-resultCh; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, linkerrors.Wrap(linkerrors.CodeConnectionFailed, "dial "+ep.String(), ctx.Err())
	}
}

// classifyDialError 区分拨号超时与拨号失败并赋予错误码。
func classifyDialError(ep config.Endpoint, err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return linkerrors.Wrap(linkerrors.CodeConnectionTimeout, "dial "+ep.String(), err)
	}
	return linkerrors.Wrap(linkerrors.CodeConnectionFailed, "dial "+ep.String(), err)
}
