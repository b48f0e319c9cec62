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

func tenantPK(tenantID string) string {
	return pkPrefixTenant + tenantID
}

// Resolve returns the credential stored for a tenant, or domain.ErrNotFound.
func (c *Client) Resolve(ctx context.Context, tenantID string) (domain.TenantCredential, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.TenantCredential{}, errors.New("repository: tenant id is required")
	}

	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": strVal(tenantPK(tenantID)),
			"SK": strVal(skCredential),
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.TenantCredential{}, fmt.Errorf("repository: Resolve get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.TenantCredential{}, domain.ErrNotFound
	}

	token, err := strAttr(out.Item, "token")
	if err != nil {
		return domain.TenantCredential{}, fmt.Errorf("repository: Resolve decode: %w", err)
	}
	cred := domain.TenantCredential{
		TenantID:  tenantID,
		Token:     token,
		BotUserID: optionalStr(out.Item, "botUserId"),
		TeamName:  optionalStr(out.Item, "teamName"),
	}
	if updated, err := timeAttr(out.Item, "updatedAt"); err == nil {
		cred.UpdatedAt = updated
	}
	return cred, nil
}

// Upsert writes or replaces the credential for a tenant.
func (c *Client) Upsert(ctx context.Context, cred domain.TenantCredential) error {
	tenantID := strings.TrimSpace(cred.TenantID)
	if tenantID == "" {
		return errors.New("repository: tenant id is required")
	}
	if strings.TrimSpace(cred.Token) == "" {
		return errors.New("repository: credential token is required")
	}
	updatedAt := cred.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = c.now()
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        strVal(tenantPK(tenantID)),
			"SK":        strVal(skCredential),
			"tenantId":  strVal(tenantID),
			"token":     strVal(cred.Token),
			"botUserId": strVal(cred.BotUserID),
			"teamName":  strVal(cred.TeamName),
			"updatedAt": strVal(updatedAt.UTC().Format(time.RFC3339Nano)),
		},
	})
	if err != nil {
		return fmt.Errorf("repository: Upsert: %w", err)
	}
	return nil
}
