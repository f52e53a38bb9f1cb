package framework

import "time"

// SubscriberConfig Subscriber 配置
type SubscriberConfig struct {
	Concurrency  int           // 并发拉取数
	BatchSize    int           // 单次拉取上限
	Rate         time.Duration // 拉取间隔（空批次时同样等待）
	ErrorBackoff time.Duration // 错误退避时间
}

// ProcessorConfig Processor 配置
type ProcessorConfig struct {
	Concurrency int           // 并发处理批次数
	BufferSize  int           // inputChan 缓冲区大小
	Timeout     time.Duration // 单批次截止时间
}
