package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/repo"
)

type scriptedDelivery struct {
	results   []error
	delivered []repo.DeliveryRequest
	attempts  int
}

func (d *scriptedDelivery) Deliver(ctx context.Context, req repo.DeliveryRequest) error {
	d.attempts++
	var err error
	if len(d.results) > 0 {
		err = d.results[0]
		d.results = d.results[1:]
	}
	if err == nil {
		d.delivered = append(d.delivered, req)
	}
	return err
}

func newTestDispatcher(delivery repo.DeliveryRepo) *Dispatcher {
	d := NewDispatcher(delivery, nil)
	d.backoff = time.Millisecond
	return d
}

func TestDispatcher_SuccessFirstTry(t *testing.T) {
	delivery := &scriptedDelivery{}
	d := newTestDispatcher(delivery)

	require.NoError(t, d.Dispatch(context.Background(), "feishu", "oc_1", "hello", nil))
	require.Len(t, delivery.delivered, 1)
	assert.Equal(t, "feishu", delivery.delivered[0].Channel)
	assert.NotEmpty(t, delivery.delivered[0].DeliveryID)
}

func TestDispatcher_RetriesTransportFailureOnce(t *testing.T) {
	delivery := &scriptedDelivery{results: []error{errors.New("exec: timeout"), nil}}
	d := newTestDispatcher(delivery)
	rejections := 0

	err := d.Dispatch(context.Background(), "feishu", "oc_1", "hello", func(*domain.RejectionError) { rejections++ })

	require.NoError(t, err)
	assert.Equal(t, 2, delivery.attempts)
	assert.Len(t, delivery.delivered, 1)
	assert.Equal(t, 0, rejections)
}

func TestDispatcher_RejectionIsNotRetried(t *testing.T) {
	delivery := &scriptedDelivery{results: []error{&domain.RejectionError{Code: "blocked", Message: "content not allowed"}}}
	d := newTestDispatcher(delivery)
	var got []*domain.RejectionError

	err := d.Dispatch(context.Background(), "feishu", "oc_1", "hello", func(rej *domain.RejectionError) { got = append(got, rej) })

	require.NoError(t, err)
	assert.Equal(t, 1, delivery.attempts)
	require.Len(t, got, 1)
	assert.Equal(t, "content not allowed", got[0].Message)
}

func TestDispatcher_WrappedRejectionIsRecognized(t *testing.T) {
	rej := &domain.RejectionError{Message: "nope"}
	delivery := &scriptedDelivery{results: []error{errors.Join(errors.New("agent said"), rej)}}
	d := newTestDispatcher(delivery)
	called := false

	require.NoError(t, d.Dispatch(context.Background(), "feishu", "oc_1", "hi", func(*domain.RejectionError) { called = true }))
	assert.True(t, called)
	assert.Equal(t, 1, delivery.attempts)
}

func TestDispatcher_GivesUpAfterSecondFailure(t *testing.T) {
	delivery := &scriptedDelivery{results: []error{errors.New("launch failed"), errors.New("launch failed")}}
	d := newTestDispatcher(delivery)

	err := d.Dispatch(context.Background(), "feishu", "oc_1", "hello", nil)

	assert.ErrorIs(t, err, ErrDispatchFailed)
	assert.Equal(t, 2, delivery.attempts)
}

func TestDispatcher_EmptyContentRejectedLocally(t *testing.T) {
	delivery := &scriptedDelivery{}
	d := newTestDispatcher(delivery)

	assert.ErrorIs(t, d.Dispatch(context.Background(), "feishu", "oc_1", "  \n", nil), ErrEmptyContent)
	assert.Equal(t, 0, delivery.attempts)
}

func TestDispatcher_CancelledDuringBackoff(t *testing.T) {
	delivery := &scriptedDelivery{results: []error{errors.New("down")}}
	d := newTestDispatcher(delivery)
	d.backoff = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Dispatch(ctx, "feishu", "oc_1", "hello", nil)
	assert.ErrorIs(t, err, ErrDispatchFailed)
	assert.Equal(t, 1, delivery.attempts)
}

func TestEndpoint_RoundTrip(t *testing.T) {
	meta := RoutingMetadata{Kind: "group", Root: "om_root", Message: "om_cur", Thread: "omt_1"}
	s := BuildEndpoint("oc_1", meta)

	ep, err := ParseEndpoint(s)
	require.NoError(t, err)
	assert.Equal(t, "oc_1", ep.ConversationID)
	assert.Equal(t, meta, ep.RoutingMetadata)
	assert.Equal(t, s, BuildEndpoint("oc_1", meta), "encoding is stable")
}

func TestEndpoint_BareConversation(t *testing.T) {
	assert.Equal(t, "ou_1", BuildEndpoint("ou_1", RoutingMetadata{}))

	ep, err := ParseEndpoint("ou_1")
	require.NoError(t, err)
	assert.Equal(t, "ou_1", ep.ConversationID)

	_, err = ParseEndpoint("?kind=group")
	assert.ErrorIs(t, err, ErrInvalidEndpoint)
}
