package mqtt

import "fmt"

// Subscribe registers handler for topic, which may use the + and #
// wildcards. The subscription is remembered and replayed after a
// reconnect until Unsubscribe removes it.
//
//	err := client.Subscribe(mqtt.Topics{}.AllStates(), 1,
//	    func(topic string, payload []byte) error {
//	        entityID, _ := mqtt.Topics{}.StateEntityID(topic)
//	        return store.Upsert(ctx, decode(entityID, payload))
//	    })
//
// Handlers run on paho's delivery goroutine and should return quickly.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.track(subscription{topic: topic, qos: qos, handler: handler})
	if err := await(c.paho.Subscribe(topic, qos, c.dispatch(handler)), ackTimeout, ErrSubscribeFailed); err != nil {
		c.untrack(topic)
		return err
	}
	return nil
}

// Unsubscribe stops delivery for a topic pattern previously passed to
// Subscribe. Messages already in flight may still arrive.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.untrack(topic)
	return await(c.paho.Unsubscribe(topic), ackTimeout, ErrUnsubscribeFailed)
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription reports whether exactly this topic pattern is tracked.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}

func (c *Client) track(sub subscription) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.subscriptions == nil {
		c.subscriptions = make(map[string]subscription)
	}
	c.subscriptions[sub.topic] = sub
}

func (c *Client) untrack(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

func validate(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}
