package testbroker

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kmsg"
)

const (
	apiKeyFetch       int16 = 1
	apiKeyListOffsets int16 = 2
	apiKeyMetadata    int16 = 3
	apiKeyApiVersions int16 = 18
)

// ListOffsets sentinel timestamps.
const (
	timestampLatest   int64 = -1
	timestampEarliest int64 = -2
)

type apiVersion struct {
	key      int16
	min, max int16
}

// supportedAPIs is what the broker advertises. Fetch stops at v12 because
// v13 addresses topics by ID.
var supportedAPIs = []apiVersion{
	{key: apiKeyFetch, min: 4, max: 12},
	{key: apiKeyListOffsets, min: 0, max: 7},
	{key: apiKeyMetadata, min: 0, max: 9},
	{key: apiKeyApiVersions, min: 0, max: 4},
}

var (
	unsupportedVersion      = kerr.UnsupportedVersion.Code
	unknownTopicOrPartition = kerr.UnknownTopicOrPartition.Code
	offsetOutOfRange        = kerr.OffsetOutOfRange.Code
)

func versionRange(key int16) (int16, int16, bool) {
	for _, api := range supportedAPIs {
		if api.key == key {
			return api.min, api.max, true
		}
	}
	return 0, 0, false
}

func maxVersion(key int16) int16 {
	_, maxV, _ := versionRange(key)
	return maxV
}

func (b *Broker) apiVersions(version int16, errorCode int16) *kmsg.ApiVersionsResponse {
	resp := kmsg.NewPtrApiVersionsResponse()
	resp.SetVersion(version)
	resp.ErrorCode = errorCode
	for _, api := range supportedAPIs {
		key := kmsg.NewApiVersionsResponseApiKey()
		key.ApiKey = api.key
		key.MinVersion = api.min
		key.MaxVersion = api.max
		resp.ApiKeys = append(resp.ApiKeys, key)
	}
	if version >= 3 {
		resp.FinalizedFeaturesEpoch = -1
	}
	return resp
}

func (b *Broker) metadata(req *kmsg.MetadataRequest) *kmsg.MetadataResponse {
	resp := kmsg.NewPtrMetadataResponse()
	resp.SetVersion(req.Version)

	broker := kmsg.NewMetadataResponseBroker()
	broker.NodeID = b.cfg.NodeID
	broker.Host = b.host
	broker.Port = b.port
	resp.Brokers = append(resp.Brokers, broker)
	resp.ControllerID = b.cfg.NodeID
	clusterID := "testbroker"
	resp.ClusterID = &clusterID

	b.mu.Lock()
	defer b.mu.Unlock()

	var names []string
	if len(req.Topics) == 0 {
		for name := range b.topics {
			names = append(names, name)
		}
	} else {
		for _, t := range req.Topics {
			if t.Topic != nil {
				names = append(names, *t.Topic)
			}
		}
	}

	for _, name := range names {
		topicName := name
		mt := kmsg.NewMetadataResponseTopic()
		mt.Topic = &topicName

		t, ok := b.topics[name]
		if !ok {
			mt.ErrorCode = unknownTopicOrPartition
			resp.Topics = append(resp.Topics, mt)
			continue
		}
		for i := range t.partitions {
			mp := kmsg.NewMetadataResponseTopicPartition()
			mp.Partition = int32(i)
			mp.Leader = b.cfg.NodeID
			mp.LeaderEpoch = 0
			mp.Replicas = []int32{b.cfg.NodeID}
			mp.ISR = []int32{b.cfg.NodeID}
			mt.Partitions = append(mt.Partitions, mp)
		}
		resp.Topics = append(resp.Topics, mt)
	}
	return resp
}

func (b *Broker) listOffsets(req *kmsg.ListOffsetsRequest) *kmsg.ListOffsetsResponse {
	resp := kmsg.NewPtrListOffsetsResponse()
	resp.SetVersion(req.Version)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, rt := range req.Topics {
		lt := kmsg.NewListOffsetsResponseTopic()
		lt.Topic = rt.Topic
		for _, rp := range rt.Partitions {
			lp := kmsg.NewListOffsetsResponseTopicPartition()
			lp.Partition = rp.Partition
			lp.LeaderEpoch = -1

			p, err := b.partitionLocked(rt.Topic, rp.Partition)
			if err != nil {
				lp.ErrorCode = unknownTopicOrPartition
				lp.Timestamp = -1
				lp.Offset = -1
				lt.Partitions = append(lt.Partitions, lp)
				continue
			}

			offset, ts := p.offsetForTimestamp(rp.Timestamp)
			if req.Version == 0 {
				lp.OldStyleOffsets = []int64{offset}
			} else {
				lp.Timestamp = ts
				lp.Offset = offset
			}
			lt.Partitions = append(lt.Partitions, lp)
		}
		resp.Topics = append(resp.Topics, lt)
	}
	return resp
}

// offsetForTimestamp resolves a ListOffsets timestamp. Real timestamps return
// the base offset of the first batch whose max timestamp reaches ts.
func (p *partition) offsetForTimestamp(ts int64) (int64, int64) {
	switch ts {
	case timestampLatest:
		return p.hwm, ts
	case timestampEarliest:
		return p.start, ts
	}
	for _, batch := range p.batches {
		maxTs := int64(binary.BigEndian.Uint64(batch[35:43]))
		if maxTs >= ts {
			return baseOffset(batch), maxTs
		}
	}
	return -1, -1
}

func (b *Broker) fetch(ctx context.Context, req *kmsg.FetchRequest) *kmsg.FetchResponse {
	wait := time.Duration(req.MaxWaitMillis) * time.Millisecond
	if wait > b.cfg.MaxFetchWait {
		wait = b.cfg.MaxFetchWait
	}

	for waited := false; ; waited = true {
		resp, hasData, wake := b.fetchOnce(req)
		if hasData || waited || wait <= 0 {
			return resp
		}

		timer := time.NewTimer(wait)
		select {
		case <-wake:
		case <-timer.C:
		case <-ctx.Done():
		case <-b.done:
		}
		timer.Stop()
	}
}

// fetchOnce builds a response from the current log. When nothing was found it
// also returns a channel closed on the next append to a requested partition.
func (b *Broker) fetchOnce(req *kmsg.FetchRequest) (*kmsg.FetchResponse, bool, <-chan struct{}) {
	resp := kmsg.NewPtrFetchResponse()
	resp.SetVersion(req.Version)

	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		hasData bool
		wake    <-chan struct{}
	)
	for _, rt := range req.Topics {
		ft := kmsg.NewFetchResponseTopic()
		ft.Topic = rt.Topic
		for _, rp := range rt.Partitions {
			fp := kmsg.NewFetchResponseTopicPartition()
			fp.Partition = rp.Partition
			fp.PreferredReadReplica = -1

			p, err := b.partitionLocked(rt.Topic, rp.Partition)
			switch {
			case err != nil:
				fp.ErrorCode = unknownTopicOrPartition
				fp.HighWatermark = -1
				fp.LastStableOffset = -1
				fp.LogStartOffset = -1
			default:
				fp.HighWatermark = p.hwm
				fp.LastStableOffset = p.hwm
				fp.LogStartOffset = p.start

				switch {
				case p.fetchErr != 0:
					fp.ErrorCode = p.fetchErr
					hasData = true
				case rp.FetchOffset < p.start || rp.FetchOffset > p.hwm:
					fp.ErrorCode = offsetOutOfRange
					hasData = true
				case rp.FetchOffset == p.hwm:
					if wake == nil {
						wake = p.appended
					}
				default:
					fp.RecordBatches = p.readFrom(rp.FetchOffset, rp.PartitionMaxBytes)
					hasData = true
				}
			}
			ft.Partitions = append(ft.Partitions, fp)
		}
		resp.Topics = append(resp.Topics, ft)
	}
	return resp, hasData, wake
}

// readFrom concatenates batches starting with the one holding offset, up to
// maxBytes. At least one batch is always returned.
func (p *partition) readFrom(offset int64, maxBytes int32) []byte {
	var out []byte
	for _, batch := range p.batches {
		if baseOffset(batch)+int64(recordCount(batch)) <= offset {
			continue
		}
		if len(out) > 0 && maxBytes > 0 && len(out)+len(batch) > int(maxBytes) {
			break
		}
		out = append(out, batch...)
	}
	return out
}
