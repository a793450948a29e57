package pipeline

// Stage is a state of the build pipeline. Stages run strictly in order;
// Aborted is reachable from any of them.
type Stage int

const (
	StageResolveVersion Stage = iota
	StageVerifyMetadata
	StageDownload
	StageExtract
	StageRemoveDefault
	StageOverlay
	StageNormalizePermissions
	StageDone
	StageAborted
)

var stageNames = [...]string{
	StageResolveVersion:       "ResolveVersion",
	StageVerifyMetadata:       "VerifyAndFetchMetadata",
	StageDownload:             "Download",
	StageExtract:              "Extract",
	StageRemoveDefault:        "RemoveDefault",
	StageOverlay:              "Overlay",
	StageNormalizePermissions: "NormalizePermissions",
	StageDone:                 "Done",
	StageAborted:              "Aborted",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "Unknown"
	}
	return stageNames[s]
}

// IsTerminal reports whether the pipeline stops in this state.
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageAborted
}

// next returns the following state on success.
func (s Stage) next() Stage {
	if s.IsTerminal() {
		return s
	}
	return s + 1
}

// Stages lists the working stages in execution order.
func Stages() []Stage {
	return []Stage{
		StageResolveVersion,
		StageVerifyMetadata,
		StageDownload,
		StageExtract,
		StageRemoveDefault,
		StageOverlay,
		StageNormalizePermissions,
	}
}
