package rabbitmq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"github.com/deepfake-detector/api/internal/domain/feedback"
)

func TestEncodeRetraining(t *testing.T) {
	body, err := EncodeRetraining(feedback.RetrainingRequest{FeedbackID: "fb", UserCorrection: true})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(body, &m))
	assert.Equal(t, "fb", m["feedback_id"])
	assert.Equal(t, true, m["user_correction"])
	assert.Equal(t, []any{}, m["frame_ids"])
}

func TestRetrainingPublisherAgainstRabbitMQ(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	rmqContainer, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	testcontainers.CleanupContainer(t, rmqContainer)
	require.NoError(t, err)

	url, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	defer conn.Close()

	pub, err := NewPublisher(conn, "deepfake.feedback")
	require.NoError(t, err)
	defer pub.Close()
	require.NoError(t, pub.BindQueue("retraining", RetrainingRoutingKey))

	rp := NewRetrainingPublisher(pub)
	req := feedback.RetrainingRequest{
		FeedbackID:          "fb-1",
		PredictedIsDeepfake: true,
		UserCorrection:      false,
		FrameIDs:            []string{"a", "b"},
		Source:              "ext",
	}
	require.NoError(t, rp.PublishRetraining(ctx, req))

	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	var msg amqp.Delivery
	require.Eventually(t, func() bool {
		d, ok, err := ch.Get("retraining", true)
		if err != nil || !ok {
			return false
		}
		msg = d
		return true
	}, 10*time.Second, 100*time.Millisecond)

	var got feedback.RetrainingRequest
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, req, got)
	assert.Equal(t, "fb-1", msg.Headers["x-feedback-id"])
}
