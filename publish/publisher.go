package publish

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/kwv/automesh/cfd"
	"github.com/kwv/automesh/recognition"
	"go.uber.org/zap"
)

// RunReport is the summary of one automesh run.
type RunReport struct {
	RunID      string                        `json:"runId"`
	Timestamp  time.Time                     `json:"timestamp"`
	Target     string                        `json:"target"`
	Detections []recognition.DetectionResult `json:"detections"`
	Regions    []cfd.RefinementRegion        `json:"regions"`
	Zones      []cfd.RotatingZone            `json:"zones"`
}

// NewRunReport stamps a report with a fresh run id and the current time.
// Nil slices are reported as empty lists.
func NewRunReport(target string, dets []recognition.DetectionResult, regions []cfd.RefinementRegion, zones []cfd.RotatingZone) RunReport {
	if dets == nil {
		dets = []recognition.DetectionResult{}
	}
	if regions == nil {
		regions = []cfd.RefinementRegion{}
	}
	if zones == nil {
		zones = []cfd.RotatingZone{}
	}
	return RunReport{
		RunID:      uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		Target:     target,
		Detections: dets,
		Regions:    regions,
		Zones:      zones,
	}
}

// Publisher writes run reports to {prefix}/runs/{runId} and {prefix}/latest.
// A nil client disables publishing.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	log           *zap.Logger
}

// NewPublisher returns a publisher using prefix, or DefaultPrefix when empty.
func NewPublisher(client mqtt.Client, prefix string, log *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           1,
		retain:        false,
		log:           log,
	}
}

// Enabled reports whether the publisher has a client.
func (p *Publisher) Enabled() bool {
	return p.client != nil
}

// RunTopic returns the per-run topic for id.
func (p *Publisher) RunTopic(id string) string {
	return fmt.Sprintf("%s/runs/%s", p.publishPrefix, id)
}

// LatestTopic returns the retained topic holding the most recent report.
func (p *Publisher) LatestTopic() string {
	return p.publishPrefix + "/latest"
}

// PublishReport sends r to its run topic and to the latest topic.
func (p *Publisher) PublishReport(r RunReport) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling run report: %w", err)
	}

	if err := p.publish(p.RunTopic(r.RunID), payload, p.retain); err != nil {
		return err
	}
	if err := p.publish(p.LatestTopic(), payload, true); err != nil {
		return err
	}
	p.log.Info("published run report",
		zap.String("run", r.RunID),
		zap.Int("detections", len(r.Detections)),
		zap.Int("regions", len(r.Regions)),
		zap.Int("zones", len(r.Zones)))
	return nil
}

func (p *Publisher) publish(topic string, payload []byte, retain bool) error {
	token := p.client.Publish(topic, p.qos, retain, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publishing to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}
