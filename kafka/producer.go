package kafka

import (
	"encoding/json"
	"log"

	"github.com/IBM/sarama"
)

type Producer struct {
	producer sarama.SyncProducer
}

func NewProducer(broker string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer([]string{broker}, config)
	if err != nil {
		return nil, err
	}

	log.Println("Kafka producer initialized")
	return &Producer{producer: producer}, nil
}

// Publish marshals event and sends it fire-and-forget: delivery failures are
// logged, never surfaced to the request path.
func (p *Producer) Publish(topic string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal %s event: %v", topic, err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		log.Printf("failed to publish %s event: %v", topic, err)
		return
	}

	log.Printf("published %s event: %s", topic, data)
}

// Nop stands in when no broker is configured.
type Nop struct{}

func (Nop) Publish(string, interface{}) {}
