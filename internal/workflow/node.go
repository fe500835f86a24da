package workflow

// Node is one state of the orchestration state machine. The set is closed:
// every transition the engine can take is enumerable over these values.
type Node int

const (
	NodeAnalyze Node = iota
	NodeCollectSecrets
	NodeDockerfile
	NodeValidate
	NodeServices
	NodeBuild
	NodeStart
	NodeHealthcheck
	NodeRetryOrHint
	NodeImproveDockerfile
	NodeHumanHint
	NodeSuccess
)

var nodeNames = map[Node]string{
	NodeAnalyze:           "analyze",
	NodeCollectSecrets:    "collect_secrets",
	NodeDockerfile:        "dockerfile",
	NodeValidate:          "validate",
	NodeServices:          "services",
	NodeBuild:             "build",
	NodeStart:             "start",
	NodeHealthcheck:       "healthcheck",
	NodeRetryOrHint:       "retry_or_hint",
	NodeImproveDockerfile: "improve_dockerfile",
	NodeHumanHint:         "human_hint",
	NodeSuccess:           "success",
}

func (n Node) String() string {
	if name, ok := nodeNames[n]; ok {
		return name
	}
	return "unknown"
}
