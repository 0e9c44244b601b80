package webhookintake

import (
	"strings"

	"github.com/tidwall/gjson"
)

// acceptedGitHubEvents are the X-GitHub-Event values that produce a
// Deployment row; anything else is acknowledged but not persisted.
var acceptedGitHubEvents = map[string]bool{
	"deployment":   true,
	"workflow_run": true,
	"push":         true,
}

// deploymentFields is the provider-agnostic subset of a Deployment that a
// webhook payload fills in.
type deploymentFields struct {
	Ref         string
	SHA         string
	Environment string
	Status      string
	TriggeredBy string
}

// parseGitHubEvent extracts deployment fields from a GitHub webhook body for
// one of the accepted event types. The second return value is false for an
// event type this intake does not persist.
func parseGitHubEvent(event string, body []byte) (deploymentFields, bool) {
	if !acceptedGitHubEvents[event] {
		return deploymentFields{}, false
	}

	parsed := gjson.ParseBytes(body)
	var f deploymentFields

	switch event {
	case "deployment":
		f.Ref = parsed.Get("deployment.ref").String()
		f.SHA = parsed.Get("deployment.sha").String()
		f.Environment = parsed.Get("deployment.environment").String()
		f.Status = orDefault(parsed.Get("deployment_status.state").String(), "pending")
		f.TriggeredBy = parsed.Get("sender.login").String()
	case "workflow_run":
		f.Ref = strings.TrimPrefix(parsed.Get("workflow_run.head_branch").String(), "refs/heads/")
		f.SHA = parsed.Get("workflow_run.head_sha").String()
		f.Status = orDefault(parsed.Get("workflow_run.conclusion").String(), parsed.Get("workflow_run.status").String())
		f.TriggeredBy = parsed.Get("sender.login").String()
	case "push":
		f.Ref = strings.TrimPrefix(parsed.Get("ref").String(), "refs/heads/")
		f.SHA = parsed.Get("after").String()
		f.Status = "pushed"
		f.TriggeredBy = orDefault(parsed.Get("pusher.name").String(), parsed.Get("sender.login").String())
	}

	return f, true
}

// parseAzureDevOpsEvent extracts deployment fields from an Azure DevOps
// service hook body. Only "build.complete" is accepted.
func parseAzureDevOpsEvent(body []byte) (deploymentFields, bool) {
	parsed := gjson.ParseBytes(body)
	if parsed.Get("eventType").String() != "build.complete" {
		return deploymentFields{}, false
	}

	return deploymentFields{
		Ref:         parsed.Get("resource.sourceBranch").String(),
		SHA:         parsed.Get("resource.sourceVersion").String(),
		Status:      orDefault(parsed.Get("resource.status").String(), "unknown"),
		TriggeredBy: parsed.Get("resource.requestedFor.displayName").String(),
	}, true
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
