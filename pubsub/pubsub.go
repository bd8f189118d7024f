// Package pubsub 将快照变更广播给多个订阅方(websocket 连接等)
package pubsub

import (
	"sync"
	"time"

	"github.com/wisersense-io/mate-service/model"
)

type (
	Subscriber chan model.Change
	TopicFunc  func(model.Change) bool
)

type Publisher struct {
	// subscribers 所有订阅者, 发布时从这里遍历
	subscribers map[Subscriber]TopicFunc
	buffer      int           // 订阅者的缓冲区长度
	timeout     time.Duration // 单个订阅者的发送超时, 超时丢弃
	// m 保护 subscribers, 增删订阅者用写锁, 发送用读锁
	m sync.RWMutex
}

func NewPublisher(publishTimeout time.Duration, buffer int) *Publisher {
	return &Publisher{
		buffer:      buffer,
		timeout:     publishTimeout,
		subscribers: make(map[Subscriber]TopicFunc),
	}
}

func (p *Publisher) Subscribe() Subscriber {
	return p.SubscribeTopic(nil)
}

// SubscribeKinds 只订阅指定原因的变更
func (p *Publisher) SubscribeKinds(kinds ...model.ChangeKind) Subscriber {
	return p.SubscribeTopic(func(c model.Change) bool {
		for _, k := range kinds {
			if c.Kind == k {
				return true
			}
		}
		return false
	})
}

func (p *Publisher) SubscribeTopic(topic TopicFunc) Subscriber {
	ch := make(Subscriber, p.buffer)
	p.m.Lock()
	p.subscribers[ch] = topic
	p.m.Unlock()

	return ch
}

// Evict 删除某个订阅者
func (p *Publisher) Evict(sub Subscriber) {
	p.m.Lock()
	defer p.m.Unlock()

	if _, ok := p.subscribers[sub]; !ok {
		return
	}
	delete(p.subscribers, sub)
	close(sub)
}

// Publish 同时向所有订阅者发送, 等待全部完成或超时
func (p *Publisher) Publish(v model.Change) {
	p.m.RLock()
	defer p.m.RUnlock()

	var wg sync.WaitGroup
	for sub, topic := range p.subscribers {
		wg.Add(1)
		go p.sendTopic(sub, topic, v, &wg)
	}

	wg.Wait()
}

// Close 关闭 Publisher, 删除所有订阅者
func (p *Publisher) Close() {
	p.m.Lock()
	defer p.m.Unlock()

	for sub := range p.subscribers {
		delete(p.subscribers, sub)
		close(sub)
	}
}

func (p *Publisher) sendTopic(sub Subscriber, topic TopicFunc, v model.Change, wg *sync.WaitGroup) {
	defer wg.Done()

	if topic != nil && !topic(v) {
		return
	}

	select {
	case sub <- v:
	case <-time.After(p.timeout):
	}
}
