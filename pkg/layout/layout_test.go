package layout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/repoflow/repoflow/pkg/layout"
)

func TestMaven2ArtifactPath(t *testing.T) {
	tests := []struct {
		name     string
		artifact layout.Artifact
		want     string
	}{
		{
			name: "plain jar",
			artifact: layout.Artifact{
				GroupID:    "org.apache.commons",
				ArtifactID: "commons-lang3",
				Version:    "3.12.0",
			},
			want: "org/apache/commons/commons-lang3/3.12.0/commons-lang3-3.12.0.jar",
		},
		{
			name: "classifier and extension",
			artifact: layout.Artifact{
				GroupID:    "abbot",
				ArtifactID: "abbot",
				Version:    "1.4.0",
				Classifier: "sources",
				Extension:  "zip",
			},
			want: "abbot/abbot/1.4.0/abbot-1.4.0-sources.zip",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, layout.Maven2{}.ArtifactPath(tt.artifact))
		})
	}
}

func TestMaven2MetadataPath(t *testing.T) {
	tests := []struct {
		name     string
		metadata layout.Metadata
		want     string
	}{
		{
			name: "artifact level",
			metadata: layout.Metadata{
				GroupID:    "abbot",
				ArtifactID: "abbot",
			},
			want: "abbot/abbot/maven-metadata.xml",
		},
		{
			name: "version level",
			metadata: layout.Metadata{
				GroupID:    "org.example",
				ArtifactID: "demo",
				Version:    "1.0.0-SNAPSHOT",
			},
			want: "org/example/demo/1.0.0-SNAPSHOT/maven-metadata.xml",
		},
		{
			name: "group level custom name",
			metadata: layout.Metadata{
				GroupID: "org.example",
				Name:    "archetype-catalog.xml",
			},
			want: "org/example/archetype-catalog.xml",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, layout.Maven2{}.MetadataPath(tt.metadata))
		})
	}
}
