package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = params
	return &sns.PublishOutput{}, f.err
}

type fakeSQS struct {
	input *sqs.SendMessageInput
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = params
	return &sqs.SendMessageOutput{}, nil
}

type fakeSecrets struct {
	calls int
	value string
}

func (f *fakeSecrets) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	v := f.value
	return &secretsmanager.GetSecretValueOutput{SecretString: &v}, nil
}

type fakeCloudwatch struct {
	inputs []*cloudwatch.PutMetricDataInput
}

func (f *fakeCloudwatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestSNSClient_Publish(t *testing.T) {
	fake := &fakeSNS{}
	c := &SNSClient{client: fake}

	err := c.Publish(context.Background(), "arn:topic", []byte(`{"a":1}`), map[string]string{"event_type": "checkout.completed"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, *fake.input.Message)
	assert.Equal(t, "checkout.completed", *fake.input.MessageAttributes["event_type"].StringValue)
}

func TestSNSClient_PublishErrors(t *testing.T) {
	c := &SNSClient{client: &fakeSNS{err: errors.New("boom")}}

	assert.Error(t, c.Publish(context.Background(), "", []byte("x"), nil))
	assert.ErrorContains(t, c.Publish(context.Background(), "arn:topic", []byte("x"), nil), "boom")
}

func TestSQSQueue_FifoSetsDedupID(t *testing.T) {
	fake := &fakeSQS{}
	q := &SQSQueue{client: fake, queueURL: "http://q/recon.fifo", fifo: true}

	require.NoError(t, q.SendMessage(context.Background(), "body", "order-1"))
	assert.Equal(t, "order-1", *fake.input.MessageDeduplicationId)
	assert.NotNil(t, fake.input.MessageGroupId)
}

func TestSQSQueue_StandardQueue(t *testing.T) {
	fake := &fakeSQS{}
	q := &SQSQueue{client: fake, queueURL: "http://q/recon"}

	require.NoError(t, q.SendMessage(context.Background(), "body", "order-1"))
	assert.Nil(t, fake.input.MessageDeduplicationId)
}

func TestSecretsClient_CachesUntilTTL(t *testing.T) {
	fake := &fakeSecrets{value: "s3cret"}
	s := newSecretsClient(fake, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		v, err := s.GetSecret(context.Background(), "checkout/STRIPE")
		require.NoError(t, err)
		assert.Equal(t, "s3cret", v)
	}
	assert.Equal(t, 1, fake.calls)

	now = now.Add(2 * time.Minute)
	_, err := s.GetSecret(context.Background(), "checkout/STRIPE")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)
}

func TestSecretsClient_GetSecretMap(t *testing.T) {
	s := newSecretsClient(&fakeSecrets{value: `{"POSTGRES_USER":"checkout"}`}, time.Minute)
	m, err := s.GetSecretMap(context.Background(), "checkout/DB_CREDENTIALS")
	require.NoError(t, err)
	assert.Equal(t, "checkout", m["POSTGRES_USER"])

	s = newSecretsClient(&fakeSecrets{value: "plain"}, time.Minute)
	_, err = s.GetSecretMap(context.Background(), "checkout/DB_CREDENTIALS")
	assert.Error(t, err)
}

func TestMetricsClient_DisabledSendsNothing(t *testing.T) {
	fake := &fakeCloudwatch{}
	m := &MetricsClient{client: fake, namespace: "ns"}

	require.NoError(t, m.RecordCount(context.Background(), MetricCheckoutAttempts, nil))
	assert.Empty(t, fake.inputs)
	assert.False(t, m.IsEnabled())

	var nilClient *MetricsClient
	assert.NoError(t, nilClient.RecordCount(context.Background(), MetricCheckoutAttempts, nil))
}

func TestMetricsClient_RecordCount(t *testing.T) {
	fake := &fakeCloudwatch{}
	m := &MetricsClient{client: fake, namespace: "ns", enabled: true}

	require.NoError(t, m.RecordCount(context.Background(), MetricOrdersCreated, map[string]string{"Service": "checkout"}))
	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "ns", *fake.inputs[0].Namespace)
	assert.Equal(t, MetricOrdersCreated, *fake.inputs[0].MetricData[0].MetricName)
	assert.Len(t, fake.inputs[0].MetricData[0].Dimensions, 1)
}
