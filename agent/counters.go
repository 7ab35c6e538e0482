package agent

import (
	"sync/atomic"

	"fleetlink/protocol"
)

// counters 单会话错误统计，全部原子累加，读取无锁。
type counters struct {
	sendFailures  atomic.Int64
	parseErrors   atomic.Int64
	unknownFrames atomic.Int64
	ackTimeouts   atomic.Int64
}

// snapshot 返回当前计数的一致性快照。
func (c *counters) snapshot() protocol.Counters {
	return protocol.Counters{
		SendFailures:  c.sendFailures.Load(),
		ParseErrors:   c.parseErrors.Load(),
		UnknownFrames: c.unknownFrames.Load(),
		AckTimeouts:   c.ackTimeouts.Load(),
	}
}
