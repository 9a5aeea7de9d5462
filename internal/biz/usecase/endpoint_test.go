package usecase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEndpoint_BareConversation(t *testing.T) {
	assert.Equal(t, "oc_a", BuildEndpoint("oc_a", RoutingMetadata{}))
}

func TestBuildEndpoint_RoundTrip(t *testing.T) {
	meta := RoutingMetadata{
		Kind:    "group",
		Root:    "om_root",
		Parent:  "om_parent",
		Message: "om_1",
		Thread:  "omt_1",
	}
	s := BuildEndpoint("oc_a", meta)
	assert.Equal(t, "oc_a?kind=group&msg=om_1&parent=om_parent&root=om_root&thread=omt_1", s)

	ep, err := ParseEndpoint(s)
	require.NoError(t, err)
	assert.Equal(t, "oc_a", ep.ConversationID)
	assert.Equal(t, meta, ep.RoutingMetadata)
}

func TestBuildEndpoint_Deterministic(t *testing.T) {
	meta := RoutingMetadata{Kind: "direct", Message: "om_1"}
	assert.Equal(t, BuildEndpoint("oc_a", meta), BuildEndpoint("oc_a", meta))
}

func TestBuildEndpoint_EscapesValues(t *testing.T) {
	s := BuildEndpoint("oc_a", RoutingMetadata{Message: "om_1&kind=x"})
	ep, err := ParseEndpoint(s)
	require.NoError(t, err)
	assert.Equal(t, "om_1&kind=x", ep.Message)
	assert.Empty(t, ep.Kind)
}

func TestParseEndpoint_Invalid(t *testing.T) {
	for _, s := range []string{"", "   ", "?msg=om_1", "oc_a?msg=%zz"} {
		_, err := ParseEndpoint(s)
		assert.True(t, errors.Is(err, ErrInvalidEndpoint), "input %q", s)
	}
}

func TestParseEndpoint_TrimsSpace(t *testing.T) {
	ep, err := ParseEndpoint("  oc_a?msg=om_1 \n")
	require.NoError(t, err)
	assert.Equal(t, "oc_a", ep.ConversationID)
	assert.Equal(t, "om_1", ep.Message)
}
