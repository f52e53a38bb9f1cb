package lmstfy

import (
	"fmt"
	"time"

	"github.com/bitleak/lmstfy/client"
)

// Job 队列任务
type Job struct {
	ID    string
	Queue string
	Data  []byte
}

// Client Lmstfy 客户端封装
type Client struct {
	cli       *client.LmstfyClient
	namespace string
}

// NewClient 创建 Lmstfy 客户端
func NewClient(host string, port int, namespace string, token string) (*Client, error) {
	if host == "" || namespace == "" {
		return nil, fmt.Errorf("lmstfy host and namespace are required")
	}
	cli := client.NewLmstfyClient(host, port, namespace, token)
	return &Client{
		cli:       cli,
		namespace: namespace,
	}, nil
}

// Publish 发布消息，返回 job_id
// ttl: 消息存活时间，tries: 最大投递次数，delay: 延迟投递
func (c *Client) Publish(queue string, data []byte, ttl time.Duration, tries uint16, delay time.Duration) (string, error) {
	jobID, err := c.cli.Publish(queue, data, seconds(ttl), tries, seconds(delay))
	if err != nil {
		return "", fmt.Errorf("lmstfy publish failed: %w", err)
	}
	return jobID, nil
}

// BatchConsume 批量消费（阻塞直到拉到消息或超时）
// ttr 内未 Ack 的消息会被重新投递
func (c *Client) BatchConsume(queue string, count int, ttr, timeout time.Duration) ([]*Job, error) {
	if count <= 0 {
		count = 1
	}
	jobs, err := c.cli.BatchConsume([]string{queue}, uint32(count), seconds(ttr), seconds(timeout))
	if err != nil {
		return nil, fmt.Errorf("lmstfy consume failed: %w", err)
	}

	out := make([]*Job, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		out = append(out, &Job{
			ID:    job.ID,
			Queue: job.Queue,
			Data:  job.Data,
		})
	}
	return out, nil
}

// Ack 确认消息（删除消息）
func (c *Client) Ack(queue string, jobID string) error {
	err := c.cli.Ack(queue, jobID)
	if err != nil {
		return fmt.Errorf("lmstfy ack failed: %w", err)
	}
	return nil
}

// Namespace 命名空间
func (c *Client) Namespace() string {
	return c.namespace
}

func seconds(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32(d / time.Second)
}
