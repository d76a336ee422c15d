// Package kafka provides a record source consuming occurrence records from
// Kafka topics, either as plain JSON objects or as Confluent-framed Avro
// with a schema registry. Records land as edk.Rows so they can be imported
// into the engine's tabular sources.
package kafka

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"sync"

	"github.com/Shopify/sarama"
	cluster "github.com/bsm/sarama-cluster"
	avro "github.com/elodina/go-avro"
	"github.com/pkg/errors"

	"github.com/ecodata/edk"
)

// Source consumes occurrence records from Kafka. Implements a
// record-at-a-time contract: Record returns io.EOF once MaxMsgs messages
// have been consumed (when MaxMsgs > 0).
type Source struct {
	Hosts   []string
	Topics  []string
	Group   string
	MaxMsgs int

	numMsgs  int
	consumer *cluster.Consumer
}

// NewSource returns a Source with the default configuration.
func NewSource() *Source {
	return &Source{
		Hosts:  []string{"localhost:9092"},
		Topics: []string{"occurrences"},
		Group:  "edk-group0",
	}
}

// Open initializes the kafka consumer.
func (s *Source) Open() error {
	sarama.Logger = log.New(ioutil.Discard, "", 0)
	config := cluster.NewConfig()
	config.Config.Version = sarama.V0_10_0_0
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Group.Return.Notifications = true

	var err error
	s.consumer, err = cluster.NewConsumer(s.Hosts, s.Group, s.Topics, config)
	if err != nil {
		return errors.Wrap(err, "getting new consumer")
	}

	go func() {
		for err := range s.consumer.Errors() {
			log.Printf("kafka error: %s\n", err.Error())
		}
	}()
	go func() {
		for ntf := range s.consumer.Notifications() {
			log.Printf("kafka rebalanced: %+v\n", ntf)
		}
	}()
	return nil
}

// Record returns the next occurrence record, decoded from JSON.
func (s *Source) Record() (edk.Row, error) {
	msg, err := s.nextMessage()
	if err != nil {
		return nil, err
	}
	parsed := make(map[string]interface{})
	if err := json.Unmarshal(msg.Value, &parsed); err != nil {
		return nil, errors.Wrap(err, "unmarshaling json")
	}
	s.consumer.MarkOffset(msg, "") // mark message as processed
	return ToRow(parsed), nil
}

func (s *Source) nextMessage() (*sarama.ConsumerMessage, error) {
	if s.MaxMsgs > 0 {
		s.numMsgs++
		if s.numMsgs > s.MaxMsgs {
			return nil, io.EOF
		}
	}
	msg, ok := <-s.consumer.Messages()
	if !ok {
		return nil, errors.New("messages channel closed")
	}
	return msg, nil
}

// Close closes the underlying kafka consumer.
func (s *Source) Close() error {
	err := s.consumer.Close()
	return errors.Wrap(err, "closing kafka consumer")
}

// ToRow flattens a decoded record into an edk.Row. Scalar values are
// stringified the way they would appear in a CSV cell; nested values are
// dropped, since source tables are flat.
func ToRow(rec map[string]interface{}) edk.Row {
	row := make(edk.Row, len(rec))
	for k, v := range rec {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			row[k] = t
		case bool:
			row[k] = fmt.Sprintf("%v", t)
		case float64:
			if t == float64(int64(t)) {
				row[k] = fmt.Sprintf("%d", int64(t))
			} else {
				row[k] = fmt.Sprintf("%v", t)
			}
		case int32, int64, int:
			row[k] = fmt.Sprintf("%d", t)
		}
	}
	return row
}

// ConfluentSource consumes Confluent-framed Avro records, resolving
// schemas against a schema registry.
type ConfluentSource struct {
	Source
	RegistryURL string

	lock  sync.RWMutex
	cache map[int32]avro.Schema
}

// NewConfluentSource returns a ConfluentSource with an empty schema cache.
func NewConfluentSource() *ConfluentSource {
	src := &ConfluentSource{
		cache: make(map[int32]avro.Schema),
	}
	return src
}

// Record returns the next occurrence record, decoded via the registry.
func (s *ConfluentSource) Record() (edk.Row, error) {
	msg, err := s.nextMessage()
	if err != nil {
		return nil, err
	}
	rec, err := s.decodeAvroValue(msg.Value)
	if err != nil {
		return nil, err
	}
	s.consumer.MarkOffset(msg, "")
	return ToRow(rec), nil
}

func (s *ConfluentSource) decodeAvroValue(val []byte) (map[string]interface{}, error) {
	if len(val) <= 6 || val[0] != 0 {
		return nil, errors.Errorf("unexpected magic byte or length in avro kafka value, should be 0x00, but got 0x%.8s", val)
	}
	id := int32(binary.BigEndian.Uint32(val[1:]))
	codec, err := s.getCodec(id)
	if err != nil {
		return nil, errors.Wrap(err, "getting avro codec")
	}
	ret, err := avroDecode(codec, val[5:])
	return ret, errors.Wrap(err, "decoding avro record")
}

// registrySchema is the object produced by the schema registry.
type registrySchema struct {
	Schema  string `json:"schema"`
	Subject string `json:"subject"`
	Version int    `json:"version"`
	ID      int    `json:"id"`
}

func (s *ConfluentSource) getCodec(id int32) (rschema avro.Schema, rerr error) {
	s.lock.RLock()
	if codec, ok := s.cache[id]; ok {
		s.lock.RUnlock()
		return codec, nil
	}
	s.lock.RUnlock()
	s.lock.Lock()
	defer s.lock.Unlock()
	r, err := http.Get(fmt.Sprintf("http://%s/schemas/ids/%d", s.RegistryURL, id))
	if err != nil {
		return nil, errors.Wrap(err, "getting schema from registry")
	}
	defer func() {
		if cerr := r.Body.Close(); rerr == nil {
			rerr = cerr
		}
	}()
	if r.StatusCode >= 300 {
		bod, err := ioutil.ReadAll(r.Body)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get schema, code: %d, no body", r.StatusCode)
		}
		return nil, errors.Errorf("failed to get schema, code: %d, resp: %s", r.StatusCode, bod)
	}
	dec := json.NewDecoder(r.Body)
	schema := &registrySchema{}
	if err := dec.Decode(schema); err != nil {
		return nil, errors.Wrap(err, "decoding schema from registry")
	}
	codec, err := avro.ParseSchema(schema.Schema)
	if err != nil {
		return nil, errors.Wrap(err, "parsing schema")
	}
	s.cache[id] = codec
	return codec, rerr
}

func avroDecode(codec avro.Schema, data []byte) (map[string]interface{}, error) {
	reader := avro.NewGenericDatumReader()
	reader.SetSchema(codec)
	decoder := avro.NewBinaryDecoder(data)
	decodedRecord := avro.NewGenericRecord(codec)
	if err := reader.Read(decodedRecord, decoder); err != nil {
		return nil, errors.Wrap(err, "reading generic datum")
	}
	return decodedRecord.Map(), nil
}

// RecordSource is anything producing occurrence rows one at a time,
// returning io.EOF when exhausted.
type RecordSource interface {
	Record() (edk.Row, error)
}

// Import drains src into an in-memory table.
func Import(src RecordSource) (edk.Rows, error) {
	rows := make(edk.Rows, 0)
	for {
		row, err := src.Record()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
}
