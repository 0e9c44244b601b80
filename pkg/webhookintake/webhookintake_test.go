package webhookintake

import "testing"

func TestParseGitHubEventDeployment(t *testing.T) {
	body := []byte(`{
		"deployment": {"ref": "refs/heads/main", "sha": "abc123", "environment": "production"},
		"deployment_status": {"state": "success"},
		"sender": {"login": "octocat"}
	}`)

	f, accepted := parseGitHubEvent("deployment", body)
	if !accepted {
		t.Fatal("expected deployment event to be accepted")
	}
	if f.SHA != "abc123" || f.Environment != "production" || f.Status != "success" || f.TriggeredBy != "octocat" {
		t.Errorf("unexpected fields: %+v", f)
	}
}

func TestParseGitHubEventDeploymentDefaultsStatus(t *testing.T) {
	body := []byte(`{"deployment": {"ref": "refs/heads/main", "sha": "abc"}, "sender": {"login": "bot"}}`)

	f, accepted := parseGitHubEvent("deployment", body)
	if !accepted {
		t.Fatal("expected acceptance")
	}
	if f.Status != "pending" {
		t.Errorf("Status = %q, want %q (default)", f.Status, "pending")
	}
}

func TestParseGitHubEventWorkflowRun(t *testing.T) {
	body := []byte(`{
		"workflow_run": {"head_branch": "refs/heads/feature-x", "head_sha": "def456", "conclusion": "success", "status": "completed"},
		"sender": {"login": "octocat"}
	}`)

	f, accepted := parseGitHubEvent("workflow_run", body)
	if !accepted {
		t.Fatal("expected acceptance")
	}
	if f.Ref != "feature-x" {
		t.Errorf("Ref = %q, want %q (refs/heads/ prefix stripped)", f.Ref, "feature-x")
	}
	if f.Status != "success" {
		t.Errorf("Status = %q, want conclusion %q over status", f.Status, "success")
	}
}

func TestParseGitHubEventPush(t *testing.T) {
	body := []byte(`{"ref": "refs/heads/main", "after": "789abc", "pusher": {"name": "alice"}}`)

	f, accepted := parseGitHubEvent("push", body)
	if !accepted {
		t.Fatal("expected acceptance")
	}
	if f.Ref != "main" || f.SHA != "789abc" || f.TriggeredBy != "alice" || f.Status != "pushed" {
		t.Errorf("unexpected fields: %+v", f)
	}
}

func TestParseGitHubEventRejectsUnknownType(t *testing.T) {
	_, accepted := parseGitHubEvent("issue_comment", []byte(`{}`))
	if accepted {
		t.Error("expected issue_comment to be rejected")
	}
}

func TestParseAzureDevOpsEventBuildComplete(t *testing.T) {
	body := []byte(`{
		"eventType": "build.complete",
		"resource": {
			"sourceBranch": "refs/heads/main",
			"sourceVersion": "abc123",
			"status": "succeeded",
			"requestedFor": {"displayName": "Jane Doe"}
		}
	}`)

	f, accepted := parseAzureDevOpsEvent(body)
	if !accepted {
		t.Fatal("expected build.complete to be accepted")
	}
	if f.SHA != "abc123" || f.Status != "succeeded" || f.TriggeredBy != "Jane Doe" {
		t.Errorf("unexpected fields: %+v", f)
	}
}

func TestParseAzureDevOpsEventRejectsOtherTypes(t *testing.T) {
	_, accepted := parseAzureDevOpsEvent([]byte(`{"eventType": "git.push"}`))
	if accepted {
		t.Error("expected git.push to be rejected")
	}
}

func TestOrDefault(t *testing.T) {
	if got := orDefault("", "fallback"); got != "fallback" {
		t.Errorf("orDefault empty = %q, want %q", got, "fallback")
	}
	if got := orDefault("value", "fallback"); got != "value" {
		t.Errorf("orDefault non-empty = %q, want %q", got, "value")
	}
}
