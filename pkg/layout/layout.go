package layout

import (
	"strings"
)

// Artifact is a set of repository coordinates for a binary payload.
type Artifact struct {
	GroupID    string
	ArtifactID string
	Version    string
	Classifier string
	// Extension defaults to "jar" when empty.
	Extension string
}

// Metadata addresses a repository metadata document at group, artifact
// or version level.
type Metadata struct {
	GroupID    string
	ArtifactID string
	Version    string
	// Name defaults to "maven-metadata.xml" when empty.
	Name string
}

// Layout maps coordinates to paths relative to the repository root. The
// transfer engine never interprets coordinates itself; it only ships
// bytes to and from the paths a layout hands it.
type Layout interface {
	ArtifactPath(a Artifact) string
	MetadataPath(m Metadata) string
}

// Maven2 is the standard maven2 repository layout.
type Maven2 struct{}

func (Maven2) ArtifactPath(a Artifact) string {
	ext := a.Extension
	if ext == "" {
		ext = "jar"
	}
	name := a.ArtifactID + "-" + a.Version
	if a.Classifier != "" {
		name += "-" + a.Classifier
	}
	return strings.Join([]string{groupPath(a.GroupID), a.ArtifactID, a.Version, name + "." + ext}, "/")
}

func (Maven2) MetadataPath(m Metadata) string {
	name := m.Name
	if name == "" {
		name = "maven-metadata.xml"
	}
	segs := []string{groupPath(m.GroupID)}
	if m.ArtifactID != "" {
		segs = append(segs, m.ArtifactID)
		if m.Version != "" {
			segs = append(segs, m.Version)
		}
	}
	return strings.Join(append(segs, name), "/")
}

func groupPath(groupID string) string {
	return strings.ReplaceAll(groupID, ".", "/")
}
