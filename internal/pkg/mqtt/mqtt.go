package mqtt

import (
	"errors"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/anicoll/kegscale-reader/internal/pkg/config"
)

var ErrConnectTimeout = errors.New("unable to connect in time")

// client is the subset of paho_mqtt.Client the service uses.
type client interface {
	Connect() paho_mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho_mqtt.Token
	Disconnect(quiesce uint)
}

type service struct {
	client            client
	mu                sync.Mutex
	configuredDevices map[string]struct{}
	publishTimeout    time.Duration
}

func New(client client) *service {
	return &service{
		client:            client,
		configuredDevices: make(map[string]struct{}),
		publishTimeout:    time.Second * 10,
	}
}

// NewClient builds a paho client for the configured broker.
func NewClient(cfg *config.MqttConfig) paho_mqtt.Client {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "kegscale-reader"
	}
	opts := paho_mqtt.NewClientOptions().
		AddBroker(cfg.Host).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Second * 5)
	return paho_mqtt.NewClient(opts)
}

func (s *service) Connect() error {
	token := s.client.Connect()
	res := token.WaitTimeout(time.Second * 5)
	if err := token.Error(); err != nil {
		return err
	}
	if res {
		return nil
	}
	return ErrConnectTimeout
}

func (s *service) Close() error {
	s.client.Disconnect(250)
	return nil
}
