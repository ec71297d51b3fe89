package notify

import (
	"encoding/json"
	"fmt"

	"github.com/nsqio/go-nsq"
	"github.com/sirupsen/logrus"

	"streetsight/internal/config"
	"streetsight/internal/dao"
)

// Publisher pushes one message per created task onto NSQ so the
// task-assignment system can pick it up. A nil Publisher is a no-op.
type Publisher struct {
	producer *nsq.Producer
	topic    string
	logger   *logrus.Entry
}

func NewPublisher(conf config.NSQConfig, logger *logrus.Entry) (*Publisher, error) {
	if !conf.Enabled {
		return nil, nil
	}
	producer, err := nsq.NewProducer(conf.NSQDAddr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("create NSQ producer: %w", err)
	}
	return &Publisher{
		producer: producer,
		topic:    conf.Topic,
		logger:   logger,
	}, nil
}

func (p *Publisher) PublishTask(msg *dao.TaskMessage) {
	if p == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.WithError(err).Error("marshal task message failed")
		return
	}
	if err := p.producer.Publish(p.topic, data); err != nil {
		p.logger.WithError(err).Errorf("publish task %d to NSQ failed", msg.TaskId)
	}
}

func (p *Publisher) Stop() {
	if p == nil {
		return
	}
	p.producer.Stop()
}
