package remote_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/repoflow/repoflow/pkg/remote"
)

func TestEndpointSupported(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want bool
	}{
		{
			name: "plain http",
			url:  "http://repo.example.com/maven2",
			want: true,
		},
		{
			name: "https",
			url:  "https://repo.example.com/maven2",
			want: true,
		},
		{
			name: "dav",
			url:  "dav://repo.example.com/maven2",
			want: true,
		},
		{
			name: "dav over https",
			url:  "dav:https://repo.example.com/maven2",
			want: true,
		},
		{
			name: "mixed case",
			url:  "HTTPS://repo.example.com/maven2",
			want: true,
		},
		{
			name: "file scheme",
			url:  "file:///tmp/repo",
			want: false,
		},
		{
			name: "scp style",
			url:  "scp://repo.example.com/maven2",
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := remote.New(tt.url)
			assert.Equal(t, tt.want, e.Supported())
		})
	}
}

func TestEndpointBuildURL(t *testing.T) {
	tests := []struct {
		name string
		repo string
		path string
		want string
	}{
		{
			name: "no trailing slash",
			repo: "http://repo.example.com/maven2",
			path: "abbot/abbot/1.4.0/abbot-1.4.0.jar",
			want: "http://repo.example.com/maven2/abbot/abbot/1.4.0/abbot-1.4.0.jar",
		},
		{
			name: "trailing slash",
			repo: "http://repo.example.com/maven2/",
			path: "abbot/abbot/1.4.0/abbot-1.4.0.jar",
			want: "http://repo.example.com/maven2/abbot/abbot/1.4.0/abbot-1.4.0.jar",
		},
		{
			name: "spaces become plus",
			repo: "http://repo.example.com/maven2",
			path: "some dir/some file.jar",
			want: "http://repo.example.com/maven2/some+dir/some+file.jar",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := remote.New(tt.repo)
			assert.Equal(t, tt.want, e.BuildURL(tt.path))
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "dav http prefix stripped",
			url:  "dav:http://repo.example.com/maven2",
			want: "http://repo.example.com/maven2",
		},
		{
			name: "dav https prefix stripped",
			url:  "dav:https://repo.example.com/maven2",
			want: "https://repo.example.com/maven2",
		},
		{
			name: "bare dav becomes http",
			url:  "dav://repo.example.com/maven2",
			want: "http://repo.example.com/maven2",
		},
		{
			name: "plain http untouched",
			url:  "http://repo.example.com/maven2",
			want: "http://repo.example.com/maven2",
		},
		{
			name: "https untouched",
			url:  "https://repo.example.com/maven2",
			want: "https://repo.example.com/maven2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, remote.NormalizeURL(tt.url))
		})
	}
}

func TestResolveURL(t *testing.T) {
	e := remote.New("dav:https://repo.example.com/maven2")
	got := e.ResolveURL("abbot/abbot/1.4.0/abbot-1.4.0.jar")
	assert.Equal(t, "https://repo.example.com/maven2/abbot/abbot/1.4.0/abbot-1.4.0.jar", got)
}
