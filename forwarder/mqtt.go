package forwarder

import (
	"context"
	"github.com/Hyp-ed/hyped-2025-sub000/canbus"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/config"
	"github.com/Hyp-ed/hyped-2025-sub000/statemachine"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"net/url"
	"strings"
	"time"
)

const (
	mqttBufferSize     = 256
	mqttConnectTimeout = 10 * time.Second
	mqttQuiesce        = 250
)

type mqttClient interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) mqttClient {
	return paho.NewClient(opts)
}

// Topics are the ground station topics for one pod.
type Topics struct {
	prefix string
}

func NewTopics(pod string) Topics {
	return Topics{prefix: "hyped/" + pod + "/"}
}

func (t Topics) Measurement(name string) string {
	return t.prefix + "measurement/" + name
}

func (t Topics) State() string {
	return t.prefix + "state/state"
}

func (t Topics) StateRequest() string {
	return t.prefix + "state/state_request"
}

// MQTTOptions builds client options from the broker URL. Credentials may come
// from the URL or the config; a client id is generated when none is set.
func MQTTOptions(cfg config.MQTTConfig) (*paho.ClientOptions, error) {
	u, err := url.Parse(cfg.Broker)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid mqtt broker %q", cfg.Broker)
	}
	var server string
	if u.Scheme == "" || u.Scheme == "mqtt" {
		server = "tcp"
	} else {
		server = u.Scheme
	}
	server += "://" + u.Host

	opts := paho.NewClientOptions()
	opts.AddBroker(server).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "hyped-" + uuid.NewString()
	}
	opts.SetClientID(clientID)
	return opts, nil
}

type publication struct {
	topic   string
	payload string
	retain  bool
}

// MQTT bridges the bus and the ground station broker. Readings and state
// changes are published; state names received on the state request topic are
// turned into StateTransitionRequests from the Mqtt board.
type MQTT struct {
	client   mqttClient
	topics   Topics
	ns       *comms.Namespace
	requests comms.Sender

	out      chan publication
	incoming chan statemachine.State
}

func NewMQTT(cfg config.MQTTConfig, pod string, ns *comms.Namespace, requests comms.Sender) (*MQTT, error) {
	opts, err := MQTTOptions(cfg)
	if err != nil {
		return nil, err
	}
	m := &MQTT{
		topics:   NewTopics(pod),
		ns:       ns,
		requests: requests,
		out:      make(chan publication, mqttBufferSize),
		incoming: make(chan statemachine.State, 8),
	}
	opts.SetOnConnectHandler(m.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.WithError(err).Warn("mqtt connection lost")
	})
	m.client = newMQTTClient(opts)
	return m, nil
}

func (m *MQTT) ForwardReading(r comms.MeasurementReading) {
	name, ok := m.ns.Name(r.Measurement)
	if !ok {
		return
	}
	m.enqueue(publication{topic: m.topics.Measurement(name), payload: r.Reading.String()})
}

func (m *MQTT) ForwardState(s statemachine.State) {
	m.enqueue(publication{topic: m.topics.State(), payload: s.String(), retain: true})
}

func (m *MQTT) enqueue(p publication) {
	select {
	case m.out <- p:
	default:
		log.WithField("topic", p.topic).Debug("mqtt buffer full, skipping")
	}
}

// Start connects to the broker and publishes until ctx is done. A broker
// that is unreachable is retried with backoff; once connected the client
// reconnects on its own.
func (m *MQTT) Start(ctx context.Context) error {
	return canbus.Retry(ctx, mqttSession{m})
}

func (m *MQTT) serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p := <-m.out:
			m.client.Publish(p.topic, 0, p.retain, p.payload)
		case s := <-m.incoming:
			req := comms.StateTransitionRequest{RequestingBoard: comms.BoardMqtt, ToState: s}
			if err := m.requests.Send(ctx, req); err != nil {
				log.WithError(err).Warn("unable to forward state request to bus")
			}
		}
	}
}

// mqttSession adapts the broker connection to canbus.Retry.
type mqttSession struct {
	*MQTT
}

func (s mqttSession) Open() error {
	token := s.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return errors.New("timed out connecting to mqtt broker")
	}
	return errors.Wrap(token.Error(), "unable to connect to mqtt broker")
}

func (s mqttSession) Close() error {
	s.client.Disconnect(0)
	return nil
}

func (s mqttSession) Start(ctx context.Context) error {
	return s.serve(ctx)
}

func (s mqttSession) Name() string {
	return "mqtt"
}

func (m *MQTT) Close() error {
	m.client.Disconnect(mqttQuiesce)
	return nil
}

func (m *MQTT) onConnect(paho.Client) {
	log.Info("connected to mqtt broker")
	m.client.Subscribe(m.topics.StateRequest(), 1, m.handleStateRequest)
}

func (m *MQTT) handleStateRequest(_ paho.Client, msg paho.Message) {
	name := strings.TrimSpace(string(msg.Payload()))
	s, err := statemachine.ParseState(name)
	if err != nil {
		log.WithField("payload", name).Warn("ignoring unknown state request")
		return
	}
	log.WithField("state", s).Info("state requested by ground station")
	select {
	case m.incoming <- s:
	default:
		log.WithField("state", s).Warn("state request buffer full, dropping")
	}
}
