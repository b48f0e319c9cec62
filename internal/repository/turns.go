package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"slack-relay/internal/domain"
)

const conditionNew = "attribute_not_exists(PK) AND attribute_not_exists(SK)"

// threadPK returns the partition key shared by every turn of a thread.
func threadPK(k domain.ThreadKey) string {
	return pkPrefixThread + k.TenantID + "#" + k.Channel + "#" + k.ThreadRoot
}

// turnSK orders turns by internal creation time; the v7 id breaks ties.
func turnSK(t domain.Turn) string {
	return skPrefixTurn + t.CreatedAt.UTC().Format(sortableTime) + "#" + t.ID
}

// markerSK is the idempotency marker for one platform message in a thread.
func markerSK(role domain.Role, turnTS string) string {
	return skPrefixMarker + string(role) + "#" + turnTS
}

// Append persists a turn. When the turn carries a platform timestamp a marker
// item is written in the same transaction so a redelivered event is rejected
// with domain.ErrDuplicateTurn.
func (c *Client) Append(ctx context.Context, turn domain.Turn) error {
	if err := validateTurn(turn); err != nil {
		return err
	}

	if strings.TrimSpace(turn.TurnTS) == "" {
		_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(c.tableName),
			Item:                turnItem(turn),
			ConditionExpression: aws.String(conditionNew),
		})
		if err != nil {
			return fmt.Errorf("repository: Append: %w", err)
		}
		return nil
	}

	pk := threadPK(turn.Thread())
	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                turnItem(turn),
					ConditionExpression: aws.String(conditionNew),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item: map[string]types.AttributeValue{
						"PK":     strVal(pk),
						"SK":     strVal(markerSK(turn.Role, turn.TurnTS)),
						"turnId": strVal(turn.ID),
					},
					ConditionExpression: aws.String(conditionNew),
				},
			},
		},
	})
	if err != nil {
		if isConditionalFailure(err) {
			return domain.ErrDuplicateTurn
		}
		return fmt.Errorf("repository: Append: %w", err)
	}
	return nil
}

// RecentWindow returns at most limit turns of the thread, oldest first.
func (c *Client) RecentWindow(ctx context.Context, key domain.ThreadKey, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		return []domain.Turn{}, nil
	}

	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     strVal(threadPK(key)),
			":prefix": strVal(skPrefixTurn),
		},
		// Read newest first so LIMIT favors the most recent context.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
		ConsistentRead:   aws.Bool(true),
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: RecentWindow query: %w", err)
	}
	if out == nil {
		return []domain.Turn{}, nil
	}

	turns := make([]domain.Turn, 0, len(out.Items))
	for _, item := range out.Items {
		turn, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: RecentWindow unmarshal: %w", err)
		}
		turns = append(turns, turn)
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func validateTurn(t domain.Turn) error {
	switch {
	case strings.TrimSpace(t.ID) == "":
		return errors.New("repository: turn id is required")
	case strings.TrimSpace(t.TenantID) == "":
		return errors.New("repository: turn tenant is required")
	case strings.TrimSpace(t.Channel) == "":
		return errors.New("repository: turn channel is required")
	case strings.TrimSpace(t.ThreadRoot) == "":
		return errors.New("repository: turn thread root is required")
	case t.Role != domain.RoleUser && t.Role != domain.RoleAssistant:
		return fmt.Errorf("repository: unknown turn role %q", t.Role)
	case t.CreatedAt.IsZero():
		return errors.New("repository: turn created-at is required")
	}
	return nil
}

func isConditionalFailure(err error) bool {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return true
			}
		}
		return false
	}
	var failed *types.ConditionalCheckFailedException
	return errors.As(err, &failed)
}

func turnItem(t domain.Turn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":         strVal(threadPK(t.Thread())),
		"SK":         strVal(turnSK(t)),
		"id":         strVal(t.ID),
		"tenantId":   strVal(t.TenantID),
		"channel":    strVal(t.Channel),
		"threadRoot": strVal(t.ThreadRoot),
		"turnTs":     strVal(t.TurnTS),
		"role":       strVal(string(t.Role)),
		"authorId":   strVal(t.AuthorID),
		"text":       strVal(t.Text),
		"createdAt":  strVal(t.CreatedAt.UTC().Format(time.RFC3339Nano)),
	}
}

// itemToTurn converts a DynamoDB attribute map to a Turn.
func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Turn{}, err
	}
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.Turn{}, err
	}
	text, err := strAttr(item, "text")
	if err != nil {
		return domain.Turn{}, err
	}
	createdAt, err := timeAttr(item, "createdAt")
	if err != nil {
		return domain.Turn{}, err
	}

	return domain.Turn{
		ID:         id,
		TenantID:   optionalStr(item, "tenantId"),
		Channel:    optionalStr(item, "channel"),
		ThreadRoot: optionalStr(item, "threadRoot"),
		TurnTS:     optionalStr(item, "turnTs"),
		Role:       domain.Role(role),
		AuthorID:   optionalStr(item, "authorId"),
		Text:       text,
		CreatedAt:  createdAt,
	}, nil
}
