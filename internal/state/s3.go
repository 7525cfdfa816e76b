package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/cairnhq/cairn/internal/ir"
	"github.com/cairnhq/cairn/internal/logging"
)

// S3Config describes a remote state backend: snapshots in an S3 object,
// run-level locking through a DynamoDB conditional put.
type S3Config struct {
	Bucket  string
	Key     string
	Region  string
	Profile string
	// LockTable is the DynamoDB table used for locking. Empty disables
	// remote locking.
	LockTable string
	Encrypt   bool
}

// S3Store keeps state in S3. It caches the snapshot in memory for the run
// and writes the whole object on every Save/Remove, same cadence as
// FileStore.
type S3Store struct {
	cfg S3Config

	s3Client *s3.Client
	dbClient *dynamodb.Client
	lockID   string

	mu   sync.Mutex
	snap *ir.State

	nodeMu sync.Mutex
	nodes  map[string]*sync.Mutex
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 backend requires a bucket")
	}
	if cfg.Key == "" {
		cfg.Key = "cairn/state.json"
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	st := &S3Store{
		cfg:      cfg,
		s3Client: s3.NewFromConfig(awsCfg),
		nodes:    make(map[string]*sync.Mutex),
	}
	if cfg.LockTable != "" {
		st.dbClient = dynamodb.NewFromConfig(awsCfg)
	}
	return st, nil
}

func (s *S3Store) Load(ctx context.Context) (*ir.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap != nil {
		return s.snap.Clone(), nil
	}

	result, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.cfg.Key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			s.snap = ir.NewState()
			s.snap.Lineage = uuid.NewString()
			return s.snap.Clone(), nil
		}
		return nil, fmt.Errorf("failed to read state from s3://%s/%s: %w", s.cfg.Bucket, s.cfg.Key, err)
	}
	defer result.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(result.Body); err != nil {
		return nil, fmt.Errorf("failed to read S3 object body: %w", err)
	}

	snap, err := decodeState(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to decode remote state: %w", err)
	}
	s.snap = snap
	return s.snap.Clone(), nil
}

func (s *S3Store) Save(ctx context.Context, addr string, rec *ir.ResourceState) error {
	unlock := s.lockNode(addr)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap == nil {
		return fmt.Errorf("state not loaded")
	}
	upsert(s.snap, addr, rec.Clone())
	return s.flushLocked(ctx)
}

func (s *S3Store) Remove(ctx context.Context, addr string) error {
	unlock := s.lockNode(addr)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap == nil {
		return fmt.Errorf("state not loaded")
	}
	remove(s.snap, addr)
	return s.flushLocked(ctx)
}

func (s *S3Store) SetOutputs(ctx context.Context, outputs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap == nil {
		return fmt.Errorf("state not loaded")
	}
	s.snap.Outputs = ir.CopyValues(outputs)
	return s.flushLocked(ctx)
}

func (s *S3Store) lockNode(addr string) func() {
	s.nodeMu.Lock()
	l, ok := s.nodes[addr]
	if !ok {
		l = &sync.Mutex{}
		s.nodes[addr] = l
	}
	s.nodeMu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *S3Store) flushLocked(ctx context.Context) error {
	s.snap.Serial++
	data, err := encodeState(s.snap)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.cfg.Key),
		Body:   bytes.NewReader(data),
	}
	if s.cfg.Encrypt {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}
	if _, err := s.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to write state to s3://%s/%s: %w", s.cfg.Bucket, s.cfg.Key, err)
	}

	logging.Debug("remote state flushed", "bucket", s.cfg.Bucket, "key", s.cfg.Key, "serial", s.snap.Serial)
	return nil
}

// Lock takes the DynamoDB lock item with a conditional put. A lock held by
// another process fails immediately; there is no stale-lock reclaim for the
// remote backend, the item must be removed by hand.
func (s *S3Store) Lock() error {
	if s.dbClient == nil {
		return nil
	}

	s.lockID = fmt.Sprintf("cairn-%d-%s", os.Getpid(), uuid.NewString())

	_, err := s.dbClient.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(s.cfg.LockTable),
		Item: map[string]dbtypes.AttributeValue{
			"LockID":  &dbtypes.AttributeValueMemberS{Value: s.cfg.Key},
			"Info":    &dbtypes.AttributeValueMemberS{Value: s.lockID},
			"Created": &dbtypes.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(LockID)"),
	})
	if err != nil {
		var ccf *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("state is locked by another process; if that process is gone, "+
				"delete the item with LockID=%q from DynamoDB table %q", s.cfg.Key, s.cfg.LockTable)
		}
		return fmt.Errorf("failed to acquire state lock: %w", err)
	}
	return nil
}

func (s *S3Store) Unlock() error {
	if s.dbClient == nil {
		return nil
	}

	_, err := s.dbClient.DeleteItem(context.Background(), &dynamodb.DeleteItemInput{
		TableName: aws.String(s.cfg.LockTable),
		Key: map[string]dbtypes.AttributeValue{
			"LockID": &dbtypes.AttributeValueMemberS{Value: s.cfg.Key},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to release state lock: %w", err)
	}
	return nil
}
