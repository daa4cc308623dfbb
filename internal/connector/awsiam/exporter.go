// Package awsiam exports an AWS account's IAM configuration as a permission
// graph snapshot: users, groups, and roles become nodes, group memberships
// and assumable roles become MEMBER_OF edges, and policy statements become
// GRANTS edges. The account itself becomes a boundary node so cross-account
// trust can be modeled when snapshots from several accounts are merged.
package awsiam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"blastradius/internal/domain"
	"blastradius/internal/logging"
	"blastradius/internal/snapshot"
)

// Exporter builds permission graph snapshots from a live AWS account
type Exporter struct {
	iamClient *iam.Client
	stsClient *sts.Client
}

// NewExporter initializes AWS clients via the standard credential chain
func NewExporter(ctx context.Context) (*Exporter, error) {
	iamClient, stsClient, err := newClients(ctx)
	if err != nil {
		return nil, err
	}
	return &Exporter{iamClient: iamClient, stsClient: stsClient}, nil
}

// Export enumerates IAM users, groups, and roles and assembles a snapshot
// document. One failing policy fetch skips that principal's grants rather
// than aborting the export.
func (e *Exporter) Export(ctx context.Context) (*snapshot.Document, error) {
	account, err := accountID(ctx, e.stsClient)
	if err != nil {
		return nil, err
	}
	logging.LogOperationStart("export_aws_iam", map[string]interface{}{"account": account})

	boundary := "aws:" + account
	doc := &snapshot.Document{}
	doc.Nodes = append(doc.Nodes, &domain.Node{ID: boundary, Kind: domain.NodeKindBoundary})

	if err := e.exportGroups(ctx, doc, boundary); err != nil {
		return nil, err
	}
	if err := e.exportUsers(ctx, doc, boundary); err != nil {
		return nil, err
	}
	if err := e.exportRoles(ctx, doc, boundary); err != nil {
		return nil, err
	}

	pruneDanglingEdges(doc)

	logging.LogDebug(fmt.Sprintf("Exported %d nodes, %d edges from account %s",
		len(doc.Nodes), len(doc.Edges), account))
	return doc, nil
}

// pruneDanglingEdges drops membership edges whose principal lives outside
// the exported account (for example a cross-account trust policy); the
// snapshot only carries edges between nodes it contains
func pruneDanglingEdges(doc *snapshot.Document) {
	known := make(map[string]bool, len(doc.Nodes))
	for _, node := range doc.Nodes {
		known[node.ID] = true
	}
	kept := doc.Edges[:0]
	for _, edge := range doc.Edges {
		if edge.Type != domain.EdgeTypeGrants && (!known[edge.From] || !known[edge.To]) {
			logging.LogDebug(fmt.Sprintf("Dropping edge to external principal: %s -> %s", edge.From, edge.To))
			continue
		}
		if edge.Type == domain.EdgeTypeGrants && !known[edge.From] {
			continue
		}
		kept = append(kept, edge)
	}
	doc.Edges = kept
}

func (e *Exporter) exportGroups(ctx context.Context, doc *snapshot.Document, boundary string) error {
	paginator := iam.NewListGroupsPaginator(e.iamClient, &iam.ListGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list groups: %w", err)
		}
		for _, group := range page.Groups {
			groupARN := aws.ToString(group.Arn)
			doc.Nodes = append(doc.Nodes, &domain.Node{
				ID:         groupARN,
				Kind:       domain.NodeKindGroup,
				Attributes: map[string]string{domain.AttrBoundary: boundary},
			})
			e.appendGrants(ctx, doc, groupARN, e.groupPolicies(ctx, aws.ToString(group.GroupName)))
		}
	}
	return nil
}

func (e *Exporter) exportUsers(ctx context.Context, doc *snapshot.Document, boundary string) error {
	paginator := iam.NewListUsersPaginator(e.iamClient, &iam.ListUsersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}
		for _, user := range page.Users {
			userARN := aws.ToString(user.Arn)
			userName := aws.ToString(user.UserName)
			doc.Nodes = append(doc.Nodes, &domain.Node{
				ID:         userARN,
				Kind:       domain.NodeKindIdentity,
				Attributes: map[string]string{domain.AttrBoundary: boundary},
			})

			groups, err := e.iamClient.ListGroupsForUser(ctx, &iam.ListGroupsForUserInput{
				UserName: user.UserName,
			})
			if err != nil {
				logging.LogWarn("Failed to list groups for user", map[string]interface{}{
					"identity": userName,
					"error":    err.Error(),
				})
			} else {
				for _, group := range groups.Groups {
					doc.Edges = append(doc.Edges, &domain.Edge{
						From: userARN,
						To:   aws.ToString(group.Arn),
						Type: domain.EdgeTypeMemberOf,
					})
				}
			}

			e.appendGrants(ctx, doc, userARN, e.userPolicies(ctx, userName))
		}
	}
	return nil
}

func (e *Exporter) exportRoles(ctx context.Context, doc *snapshot.Document, boundary string) error {
	paginator := iam.NewListRolesPaginator(e.iamClient, &iam.ListRolesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list roles: %w", err)
		}
		for _, role := range page.Roles {
			roleARN := aws.ToString(role.Arn)
			doc.Nodes = append(doc.Nodes, &domain.Node{
				ID:         roleARN,
				Kind:       domain.NodeKindRole,
				Attributes: map[string]string{domain.AttrBoundary: boundary},
			})

			// Principals allowed to assume the role become members of it
			for _, principal := range assumablePrincipals(aws.ToString(role.AssumeRolePolicyDocument)) {
				doc.Edges = append(doc.Edges, &domain.Edge{
					From: principal,
					To:   roleARN,
					Type: domain.EdgeTypeMemberOf,
				})
			}

			e.appendGrants(ctx, doc, roleARN, e.rolePolicies(ctx, aws.ToString(role.RoleName)))
		}
	}
	return nil
}

// appendGrants converts policy documents into GRANTS edges on a principal
func (e *Exporter) appendGrants(ctx context.Context, doc *snapshot.Document, principalID string, policyDocs []map[string]interface{}) {
	for _, policyDoc := range policyDocs {
		for _, stmt := range statementsOf(policyDoc) {
			effect := domain.EffectAllow
			if stmt["Effect"] == "Deny" {
				effect = domain.EffectDeny
			}
			actions := normalizeToList(stmt["Action"])
			if len(actions) == 0 {
				continue
			}
			for _, resource := range normalizeToList(stmt["Resource"]) {
				doc.Edges = append(doc.Edges, &domain.Edge{
					From: principalID,
					Type: domain.EdgeTypeGrants,
					Statement: &domain.PolicyStatement{
						SID:             asString(stmt["Sid"]),
						Effect:          effect,
						Actions:         actions,
						ResourcePattern: resource,
					},
				})
			}
		}
	}
}

// rolePolicies retrieves all attached and inline policy documents for a role.
// Failures are logged and skipped; one unreadable policy must not hide the
// rest of the role's grants.
func (e *Exporter) rolePolicies(ctx context.Context, roleName string) []map[string]interface{} {
	policies := make([]map[string]interface{}, 0)

	attached, err := e.iamClient.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{
		RoleName: aws.String(roleName),
	})
	if err != nil {
		logging.LogWarn("Failed to list attached policies", map[string]interface{}{
			"identity": roleName, "error": err.Error(),
		})
	} else {
		for _, policy := range attached.AttachedPolicies {
			if doc := e.managedPolicyDocument(ctx, policy.PolicyArn); doc != nil {
				policies = append(policies, doc)
			}
		}
	}

	inline, err := e.iamClient.ListRolePolicies(ctx, &iam.ListRolePoliciesInput{
		RoleName: aws.String(roleName),
	})
	if err != nil {
		logging.LogWarn("Failed to list inline policies", map[string]interface{}{
			"identity": roleName, "error": err.Error(),
		})
		return policies
	}
	for _, policyName := range inline.PolicyNames {
		out, err := e.iamClient.GetRolePolicy(ctx, &iam.GetRolePolicyInput{
			RoleName:   aws.String(roleName),
			PolicyName: aws.String(policyName),
		})
		if err != nil {
			continue
		}
		if doc := decodePolicyDocument(aws.ToString(out.PolicyDocument)); doc != nil {
			policies = append(policies, doc)
		}
	}
	return policies
}

func (e *Exporter) userPolicies(ctx context.Context, userName string) []map[string]interface{} {
	policies := make([]map[string]interface{}, 0)

	attached, err := e.iamClient.ListAttachedUserPolicies(ctx, &iam.ListAttachedUserPoliciesInput{
		UserName: aws.String(userName),
	})
	if err == nil {
		for _, policy := range attached.AttachedPolicies {
			if doc := e.managedPolicyDocument(ctx, policy.PolicyArn); doc != nil {
				policies = append(policies, doc)
			}
		}
	}

	inline, err := e.iamClient.ListUserPolicies(ctx, &iam.ListUserPoliciesInput{
		UserName: aws.String(userName),
	})
	if err != nil {
		return policies
	}
	for _, policyName := range inline.PolicyNames {
		out, err := e.iamClient.GetUserPolicy(ctx, &iam.GetUserPolicyInput{
			UserName:   aws.String(userName),
			PolicyName: aws.String(policyName),
		})
		if err != nil {
			continue
		}
		if doc := decodePolicyDocument(aws.ToString(out.PolicyDocument)); doc != nil {
			policies = append(policies, doc)
		}
	}
	return policies
}

func (e *Exporter) groupPolicies(ctx context.Context, groupName string) []map[string]interface{} {
	policies := make([]map[string]interface{}, 0)

	attached, err := e.iamClient.ListAttachedGroupPolicies(ctx, &iam.ListAttachedGroupPoliciesInput{
		GroupName: aws.String(groupName),
	})
	if err == nil {
		for _, policy := range attached.AttachedPolicies {
			if doc := e.managedPolicyDocument(ctx, policy.PolicyArn); doc != nil {
				policies = append(policies, doc)
			}
		}
	}

	inline, err := e.iamClient.ListGroupPolicies(ctx, &iam.ListGroupPoliciesInput{
		GroupName: aws.String(groupName),
	})
	if err != nil {
		return policies
	}
	for _, policyName := range inline.PolicyNames {
		out, err := e.iamClient.GetGroupPolicy(ctx, &iam.GetGroupPolicyInput{
			GroupName:  aws.String(groupName),
			PolicyName: aws.String(policyName),
		})
		if err != nil {
			continue
		}
		if doc := decodePolicyDocument(aws.ToString(out.PolicyDocument)); doc != nil {
			policies = append(policies, doc)
		}
	}
	return policies
}

func (e *Exporter) managedPolicyDocument(ctx context.Context, policyARN *string) map[string]interface{} {
	policyOut, err := e.iamClient.GetPolicy(ctx, &iam.GetPolicyInput{PolicyArn: policyARN})
	if err != nil {
		return nil
	}
	versionOut, err := e.iamClient.GetPolicyVersion(ctx, &iam.GetPolicyVersionInput{
		PolicyArn: policyOut.Policy.Arn,
		VersionId: policyOut.Policy.DefaultVersionId,
	})
	if err != nil {
		return nil
	}
	return decodePolicyDocument(aws.ToString(versionOut.PolicyVersion.Document))
}

// decodePolicyDocument parses an IAM policy document, URL-decoding it first
// when the API returned it percent-encoded
func decodePolicyDocument(docStr string) map[string]interface{} {
	if strings.HasPrefix(docStr, "%") || (strings.Contains(docStr, "%") && !strings.HasPrefix(docStr, "{")) {
		if decoded, err := url.QueryUnescape(docStr); err == nil {
			docStr = decoded
		}
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(docStr), &doc); err != nil {
		return nil
	}
	return doc
}

// assumablePrincipals extracts AWS principal ARNs allowed to assume a role
// from its trust policy document
func assumablePrincipals(trustDoc string) []string {
	doc := decodePolicyDocument(trustDoc)
	if doc == nil {
		return nil
	}
	principals := make([]string, 0)
	for _, stmt := range statementsOf(doc) {
		if stmt["Effect"] != "Allow" {
			continue
		}
		principal, ok := stmt["Principal"].(map[string]interface{})
		if !ok {
			continue
		}
		for _, arn := range normalizeToList(principal["AWS"]) {
			if strings.HasPrefix(arn, "arn:") {
				principals = append(principals, arn)
			}
		}
	}
	return principals
}

func statementsOf(policyDoc map[string]interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0)
	switch stmts := policyDoc["Statement"].(type) {
	case []interface{}:
		for _, stmtInterface := range stmts {
			if stmt, ok := stmtInterface.(map[string]interface{}); ok {
				out = append(out, stmt)
			}
		}
	case map[string]interface{}:
		out = append(out, stmts)
	}
	return out
}

// normalizeToList normalizes a policy document value to a list of strings
func normalizeToList(value interface{}) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	default:
		return []string{}
	}
}

func asString(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}
