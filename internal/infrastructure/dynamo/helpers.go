package dynamo

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// strKey is the key map for tables with a single string partition key.
func strKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

// compositeKey is the key map for tables keyed by partition plus sort
// attribute, both strings.
func compositeKey(pkName, pkValue, skName, skValue string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		pkName: &types.AttributeValueMemberS{Value: pkValue},
		skName: &types.AttributeValueMemberS{Value: skValue},
	}
}

// buildUpdateExpr turns a field map into a SET expression with placeholder
// attribute names and marshalled values, ready for an UpdateItem call.
func buildUpdateExpr(updates map[string]interface{}) (string, map[string]string, map[string]types.AttributeValue, error) {
	if len(updates) == 0 {
		return "", nil, nil, fmt.Errorf("no fields to update")
	}

	names := make(map[string]string, len(updates))
	values := make(map[string]types.AttributeValue, len(updates))

	var b strings.Builder
	b.WriteString("SET ")
	i := 0
	for field, val := range updates {
		av, err := attributevalue.Marshal(val)
		if err != nil {
			return "", nil, nil, fmt.Errorf("marshal field %s: %w", field, err)
		}
		nameKey := fmt.Sprintf("#f%d", i)
		valueKey := fmt.Sprintf(":v%d", i)
		names[nameKey] = field
		values[valueKey] = av
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = %s", nameKey, valueKey)
		i++
	}
	return b.String(), names, values, nil
}
