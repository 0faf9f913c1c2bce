package protocol

import (
	"google.golang.org/protobuf/encoding/protowire"

	"pleezer/internal/perrors"
)

// DiscoveryRequest is published by a controller requesting a
// ConnectionOffer back (spec.md §4.8 step 4).
type DiscoveryRequest struct {
	DeviceID   string
	DeviceName string
	DeviceType string
}

const (
	discoveryFieldDeviceID   = 1
	discoveryFieldDeviceName = 2
	discoveryFieldDeviceType = 3
)

func MarshalDiscoveryRequest(m DiscoveryRequest) []byte {
	var b []byte
	b = protowire.AppendTag(b, discoveryFieldDeviceID, protowire.BytesType)
	b = protowire.AppendString(b, m.DeviceID)
	b = protowire.AppendTag(b, discoveryFieldDeviceName, protowire.BytesType)
	b = protowire.AppendString(b, m.DeviceName)
	b = protowire.AppendTag(b, discoveryFieldDeviceType, protowire.BytesType)
	b = protowire.AppendString(b, m.DeviceType)
	return b
}

func UnmarshalDiscoveryRequest(data []byte) (DiscoveryRequest, error) {
	var m DiscoveryRequest
	for len(data) > 0 {
		num, wireType, n := protowire.ConsumeTag(data)
		if n < 0 {
			return m, perrors.NewProtocol("malformed DiscoveryRequest tag", nil)
		}
		data = data[n:]
		if wireType != protowire.BytesType {
			return m, perrors.NewProtocol("unexpected DiscoveryRequest wire type", nil)
		}
		s, n := protowire.ConsumeString(data)
		if n < 0 {
			return m, perrors.NewProtocol("malformed DiscoveryRequest string field", nil)
		}
		data = data[n:]
		switch num {
		case discoveryFieldDeviceID:
			m.DeviceID = s
		case discoveryFieldDeviceName:
			m.DeviceName = s
		case discoveryFieldDeviceType:
			m.DeviceType = s
		}
	}
	return m, nil
}

// ConnectionOffer is pleezer's response to discovery (spec.md §4.8 step
// 4): advertises device_id, device_name, device_type, and a fresh
// offer_id. offer_id is intentionally NOT validated against what the
// controller later echoes back (spec.md §4.8 "Rules": a historical bug
// fix traded strict matching for robustness).
type ConnectionOffer struct {
	DeviceID   string
	DeviceName string
	DeviceType string
	OfferID    string
}

const (
	offerFieldDeviceID   = 1
	offerFieldDeviceName = 2
	offerFieldDeviceType = 3
	offerFieldOfferID    = 4
)

func MarshalConnectionOffer(m ConnectionOffer) []byte {
	var b []byte
	b = protowire.AppendTag(b, offerFieldDeviceID, protowire.BytesType)
	b = protowire.AppendString(b, m.DeviceID)
	b = protowire.AppendTag(b, offerFieldDeviceName, protowire.BytesType)
	b = protowire.AppendString(b, m.DeviceName)
	b = protowire.AppendTag(b, offerFieldDeviceType, protowire.BytesType)
	b = protowire.AppendString(b, m.DeviceType)
	b = protowire.AppendTag(b, offerFieldOfferID, protowire.BytesType)
	b = protowire.AppendString(b, m.OfferID)
	return b
}

func UnmarshalConnectionOffer(data []byte) (ConnectionOffer, error) {
	var m ConnectionOffer
	for len(data) > 0 {
		num, wireType, n := protowire.ConsumeTag(data)
		if n < 0 {
			return m, perrors.NewProtocol("malformed ConnectionOffer tag", nil)
		}
		data = data[n:]
		if wireType != protowire.BytesType {
			return m, perrors.NewProtocol("unexpected ConnectionOffer wire type", nil)
		}
		s, n := protowire.ConsumeString(data)
		if n < 0 {
			return m, perrors.NewProtocol("malformed ConnectionOffer string field", nil)
		}
		data = data[n:]
		switch num {
		case offerFieldDeviceID:
			m.DeviceID = s
		case offerFieldDeviceName:
			m.DeviceName = s
		case offerFieldDeviceType:
			m.DeviceType = s
		case offerFieldOfferID:
			m.OfferID = s
		}
	}
	return m, nil
}

// QueueListItem is one entry published in a QueueList update.
type QueueListItem struct {
	TrackID  string
	Position int32
}

const (
	itemFieldTrackID  = 1
	itemFieldPosition = 2
)

func marshalQueueListItem(item QueueListItem) []byte {
	var b []byte
	b = protowire.AppendTag(b, itemFieldTrackID, protowire.BytesType)
	b = protowire.AppendString(b, item.TrackID)
	b = protowire.AppendTag(b, itemFieldPosition, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(uint32(item.Position)))
	return b
}

func unmarshalQueueListItem(data []byte, depth int) (QueueListItem, error) {
	if err := checkDepth(depth); err != nil {
		return QueueListItem{}, err
	}
	var item QueueListItem
	for len(data) > 0 {
		num, wireType, n := protowire.ConsumeTag(data)
		if n < 0 {
			return item, perrors.NewProtocol("malformed QueueListItem tag", nil)
		}
		data = data[n:]
		switch num {
		case itemFieldTrackID:
			if wireType != protowire.BytesType {
				return item, perrors.NewProtocol("unexpected QueueListItem.track_id wire type", nil)
			}
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return item, perrors.NewProtocol("malformed QueueListItem.track_id", nil)
			}
			data = data[n:]
			item.TrackID = s
		case itemFieldPosition:
			if wireType != protowire.VarintType {
				return item, perrors.NewProtocol("unexpected QueueListItem.position wire type", nil)
			}
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return item, perrors.NewProtocol("malformed QueueListItem.position", nil)
			}
			data = data[n:]
			item.Position = int32(uint32(v))
		default:
			return item, perrors.NewProtocol("unknown QueueListItem field", nil)
		}
	}
	return item, nil
}

// QueueList is the periodic queue-state publication (spec.md §4.8 step 6).
type QueueList struct {
	Items []QueueListItem
}

const queueListFieldItems = 1

func MarshalQueueList(q QueueList) []byte {
	var b []byte
	for _, item := range q.Items {
		b = protowire.AppendTag(b, queueListFieldItems, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalQueueListItem(item))
	}
	return b
}

// UnmarshalQueueList decodes q, rejecting item-nesting beyond
// maxNestingDepth (spec.md §4.7).
func UnmarshalQueueList(data []byte) (QueueList, error) {
	var q QueueList
	for len(data) > 0 {
		num, wireType, n := protowire.ConsumeTag(data)
		if n < 0 {
			return q, perrors.NewProtocol("malformed QueueList tag", nil)
		}
		data = data[n:]
		if num != queueListFieldItems {
			return q, perrors.NewProtocol("unknown QueueList field", nil)
		}
		if wireType != protowire.BytesType {
			return q, perrors.NewProtocol("unexpected QueueList.items wire type", nil)
		}
		itemBytes, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return q, perrors.NewProtocol("malformed QueueList.items entry", nil)
		}
		data = data[n:]

		item, err := unmarshalQueueListItem(itemBytes, 1)
		if err != nil {
			return q, err
		}
		q.Items = append(q.Items, item)
	}
	return q, nil
}
