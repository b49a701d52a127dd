package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
)

// DynamoDB key constants for the single-table design.
const (
	groupPKPrefix = "GROUP#"
	itemPKPrefix  = "ITEM#"
	skMeta        = "META"
	skItem        = "ITEM#"
	skItemDef     = "DEF"

	// maxBatchWrite is the DynamoDB BatchWriteItem limit per call.
	maxBatchWrite = 25

	// maxConcurrentWrites bounds in-flight write calls during group creation.
	maxConcurrentWrites = 4

	// maxUnprocessedRetries bounds resubmission of BatchWriteItem leftovers.
	maxUnprocessedRetries = 3
)

// dynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoStore implements Store using AWS DynamoDB.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
}

// Compile-time interface check.
var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoStore(client dynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

// TableName returns the backing table name.
func (s *DynamoStore) TableName() string {
	return s.tableName
}

// --- Internal helpers ---

func groupPK(groupID string) string {
	return groupPKPrefix + groupID
}

func recordSK(itemID string) string {
	return skItem + itemID
}

func itemPK(itemID string) string {
	return itemPKPrefix + itemID
}

func keyOf(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// marshalWithKey marshals a domain object and adds PK and SK.
// The domain object should use dynamodbav:"-" for fields derived from PK/SK.
func marshalWithKey(pk, sk string, data interface{}) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	return item, nil
}

// putItem writes an item. When ifAbsent is set the write is conditional on
// the key not existing and the returned bool reports whether it was written.
func (s *DynamoStore) putItem(ctx context.Context, pk, sk string, data interface{}, ifAbsent bool) (bool, error) {
	item, err := marshalWithKey(pk, sk, data)
	if err != nil {
		return false, err
	}
	input := &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}
	if ifAbsent {
		input.ConditionExpression = aws.String("attribute_not_exists(PK)")
	}

	_, err = s.client.PutItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if ifAbsent && errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return true, nil
}

// getItem reads a single item from DynamoDB and unmarshals it into out.
// Returns false if the item does not exist (out is not modified).
func (s *DynamoStore) getItem(ctx context.Context, pk, sk string, out interface{}) (bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		Key:            keyOf(pk, sk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk, err)
	}
	return true, nil
}

// queryPartition returns every item in a group partition whose SK begins
// with skPrefix. An empty prefix returns the whole partition. Reads are
// strongly consistent so the aggregator sees the write that triggered it.
func (s *DynamoStore) queryPartition(ctx context.Context, groupID, skPrefix string) ([]map[string]types.AttributeValue, error) {
	pk := groupPK(groupID)

	input := &dynamodb.QueryInput{
		TableName:      &s.tableName,
		ConsistentRead: aws.Bool(true),
	}
	if skPrefix == "" {
		input.KeyConditionExpression = aws.String("PK = :pk")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		}
	} else {
		input.KeyConditionExpression = aws.String("PK = :pk AND begins_with(SK, :skPrefix)")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":pk":       &types.AttributeValueMemberS{Value: pk},
			":skPrefix": &types.AttributeValueMemberS{Value: skPrefix},
		}
	}

	var allItems []map[string]types.AttributeValue

	// DynamoDB returns up to 1MB per Query call.
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query PK=%s SK prefix=%s: %w", pk, skPrefix, err)
		}
		allItems = append(allItems, result.Items...)

		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	return allItems, nil
}

func skOf(item map[string]types.AttributeValue) string {
	if sk, ok := item["SK"].(*types.AttributeValueMemberS); ok {
		return sk.Value
	}
	return ""
}

func unmarshalRecord(groupID string, item map[string]types.AttributeValue) (*hunt.CollectionRecord, error) {
	var rec hunt.CollectionRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record %s: %w", skOf(item), err)
	}
	rec.GroupID = groupID
	rec.ItemID = strings.TrimPrefix(skOf(item), skItem)
	return &rec, nil
}

// batchPut writes items in chunks of maxBatchWrite, several chunks at a time.
func (s *DynamoStore) batchPut(ctx context.Context, items []map[string]types.AttributeValue) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentWrites)

	for i := 0; i < len(items); i += maxBatchWrite {
		end := i + maxBatchWrite
		if end > len(items) {
			end = len(items)
		}

		requests := make([]types.WriteRequest, 0, end-i)
		for _, item := range items[i:end] {
			requests = append(requests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}

		g.Go(func() error {
			pending := map[string][]types.WriteRequest{s.tableName: requests}
			for attempt := 0; len(pending) > 0; attempt++ {
				if attempt > maxUnprocessedRetries {
					return fmt.Errorf("BatchWriteItem: %d items left unprocessed", len(pending[s.tableName]))
				}
				out, err := s.client.BatchWriteItem(gctx, &dynamodb.BatchWriteItemInput{
					RequestItems: pending,
				})
				if err != nil {
					return fmt.Errorf("BatchWriteItem put (%d items): %w", len(pending[s.tableName]), err)
				}
				pending = out.UnprocessedItems
			}
			return nil
		})
	}
	return g.Wait()
}

// --- Group operations ---

func (s *DynamoStore) CreateGroup(ctx context.Context, group *hunt.Group, itemIDs []string) error {
	if group.CreatedAt == "" {
		group.CreatedAt = hunt.FormatTimestamp(time.Now())
	}
	itemIDs = dedupeIDs(itemIDs)

	created, err := s.putItem(ctx, groupPK(group.ID), skMeta, group, true)
	if err != nil {
		return fmt.Errorf("create group %s: %w", group.ID, err)
	}

	if created {
		items := make([]map[string]types.AttributeValue, 0, len(itemIDs))
		for _, itemID := range itemIDs {
			item, err := marshalWithKey(groupPK(group.ID), recordSK(itemID), &hunt.CollectionRecord{})
			if err != nil {
				return fmt.Errorf("create group %s: record %s: %w", group.ID, itemID, err)
			}
			items = append(items, item)
		}
		if err := s.batchPut(ctx, items); err != nil {
			return fmt.Errorf("create group %s records: %w", group.ID, err)
		}
	} else {
		// Replay: only fill in records that are missing.
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxConcurrentWrites)
		for _, itemID := range itemIDs {
			g.Go(func() error {
				_, err := s.putItem(gctx, groupPK(group.ID), recordSK(itemID), &hunt.CollectionRecord{}, true)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("repair group %s records: %w", group.ID, err)
		}
	}

	log.Debug().
		Str("groupId", group.ID).
		Str("kind", string(group.Kind)).
		Int("items", len(itemIDs)).
		Bool("created", created).
		Msg("Group persisted to DynamoDB")
	return nil
}

func (s *DynamoStore) GetGroup(ctx context.Context, groupID string) (*hunt.Group, error) {
	var group hunt.Group
	found, err := s.getItem(ctx, groupPK(groupID), skMeta, &group)
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", groupID, err)
	}
	if !found {
		return nil, nil
	}
	group.ID = groupID
	return &group, nil
}

func (s *DynamoStore) MarkGroupCompleted(ctx context.Context, groupID string, at time.Time) (bool, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 keyOf(groupPK(groupID), skMeta),
		UpdateExpression:    aws.String("SET isCompleted = :t, completedAt = if_not_exists(completedAt, :at)"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":  &types.AttributeValueMemberBOOL{Value: true},
			":at": &types.AttributeValueMemberS{Value: hunt.FormatTimestamp(at)},
		},
		ReturnValues: types.ReturnValueUpdatedOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, fmt.Errorf("mark group %s completed: %w", groupID, hunt.ErrGroupNotFound)
		}
		return false, fmt.Errorf("mark group %s completed: %w", groupID, err)
	}

	wasCompleted := false
	if old, ok := out.Attributes["isCompleted"].(*types.AttributeValueMemberBOOL); ok {
		wasCompleted = old.Value
	}
	log.Debug().Str("groupId", groupID).Bool("changed", !wasCompleted).Msg("Group marked completed")
	return !wasCompleted, nil
}

func (s *DynamoStore) GetGroupStatus(ctx context.Context, groupID string) (*hunt.GroupStatus, error) {
	items, err := s.queryPartition(ctx, groupID, "")
	if err != nil {
		return nil, fmt.Errorf("get group status %s: %w", groupID, err)
	}

	status := &hunt.GroupStatus{Records: []*hunt.CollectionRecord{}}
	for _, item := range items {
		sk := skOf(item)
		switch {
		case sk == skMeta:
			var group hunt.Group
			if err := attributevalue.UnmarshalMap(item, &group); err != nil {
				return nil, fmt.Errorf("unmarshal group %s: %w", groupID, err)
			}
			group.ID = groupID
			status.Group = &group
		case strings.HasPrefix(sk, skItem):
			rec, err := unmarshalRecord(groupID, item)
			if err != nil {
				return nil, err
			}
			status.Records = append(status.Records, rec)
		}
	}
	if status.Group == nil {
		return nil, nil
	}
	sortRecords(status.Records)
	return status, nil
}

// --- Collection record operations ---

func (s *DynamoStore) GetCollectionRecord(ctx context.Context, groupID, itemID string) (*hunt.CollectionRecord, error) {
	var rec hunt.CollectionRecord
	found, err := s.getItem(ctx, groupPK(groupID), recordSK(itemID), &rec)
	if err != nil {
		return nil, fmt.Errorf("get record %s/%s: %w", groupID, itemID, err)
	}
	if !found {
		return nil, nil
	}
	rec.GroupID = groupID
	rec.ItemID = itemID
	return &rec, nil
}

func (s *DynamoStore) ListCollectionRecords(ctx context.Context, groupID string) ([]*hunt.CollectionRecord, error) {
	items, err := s.queryPartition(ctx, groupID, skItem)
	if err != nil {
		return nil, fmt.Errorf("list records for %s: %w", groupID, err)
	}

	records := make([]*hunt.CollectionRecord, 0, len(items))
	for _, item := range items {
		rec, err := unmarshalRecord(groupID, item)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	sortRecords(records)
	return records, nil
}

func (s *DynamoStore) UpdateCollection(ctx context.Context, upd hunt.CollectionUpdate) (*hunt.CollectionRecord, error) {
	labelsAV, err := attributevalue.Marshal(nonNil(upd.LabelsDetected))
	if err != nil {
		return nil, fmt.Errorf("marshal labels: %w", err)
	}
	matchedAV, err := attributevalue.Marshal(nonNil(upd.MatchedTerms))
	if err != nil {
		return nil, fmt.Errorf("marshal matched terms: %w", err)
	}

	condition := "attribute_exists(PK)"
	if upd.RejectOlder {
		condition += " AND (attribute_not_exists(eventTimestamp) OR eventTimestamp <= :ts)"
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key:       keyOf(groupPK(upd.GroupID), recordSK(upd.ItemID)),
		UpdateExpression: aws.String("SET isCollected = :c, labelsDetected = :l, matchedTerms = :m, " +
			"imageKey = :k, processedAt = :p, eventTimestamp = :ts"),
		ConditionExpression: aws.String(condition),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c":  &types.AttributeValueMemberBOOL{Value: upd.IsCollected},
			":l":  labelsAV,
			":m":  matchedAV,
			":k":  &types.AttributeValueMemberS{Value: upd.ImageKey},
			":p":  &types.AttributeValueMemberS{Value: upd.ProcessedAt},
			":ts": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", upd.EventTimestamp)},
		},
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return nil, fmt.Errorf("update record %s/%s: %w", upd.GroupID, upd.ItemID, hunt.ErrRecordNotFound)
			}
			return nil, fmt.Errorf("update record %s/%s: %w", upd.GroupID, upd.ItemID, hunt.ErrStaleEvent)
		}
		return nil, fmt.Errorf("update record %s/%s: %w", upd.GroupID, upd.ItemID, err)
	}

	var rec hunt.CollectionRecord
	if err := attributevalue.UnmarshalMap(out.Attributes, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal updated record %s/%s: %w", upd.GroupID, upd.ItemID, err)
	}
	rec.GroupID = upd.GroupID
	rec.ItemID = upd.ItemID

	log.Debug().
		Str("groupId", upd.GroupID).
		Str("itemId", upd.ItemID).
		Bool("isCollected", rec.IsCollected).
		Int("labels", len(rec.LabelsDetected)).
		Msg("Collection record updated")
	return &rec, nil
}

// --- Item catalog ---

func (s *DynamoStore) PutItem(ctx context.Context, item *hunt.Item) error {
	if _, err := s.putItem(ctx, itemPK(item.ID), skItemDef, item, false); err != nil {
		return fmt.Errorf("put item %s: %w", item.ID, err)
	}
	log.Debug().Str("itemId", item.ID).Str("name", item.Name).Msg("Item persisted")
	return nil
}

func (s *DynamoStore) GetItem(ctx context.Context, itemID string) (*hunt.Item, error) {
	var item hunt.Item
	found, err := s.getItem(ctx, itemPK(itemID), skItemDef, &item)
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", itemID, err)
	}
	if !found {
		return nil, nil
	}
	item.ID = itemID
	return &item, nil
}
