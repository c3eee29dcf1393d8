package provider

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrUnsupportedModel is returned for models without known endpoints.
var ErrUnsupportedModel = errors.New("unsupported model")

// Spec holds the endpoints used for one model family.
type Spec struct {
	Model        string
	CreatePath   string
	statusPrefix string
}

var specs = map[string]Spec{
	"sora2":    {Model: "sora2", CreatePath: "/v2/videos/generations", statusPrefix: "/v2/videos/generations/"},
	"veo":      {Model: "veo", CreatePath: "/v1/video/veo/text-to-video", statusPrefix: "/v1/video/veo/tasks/"},
	"seedance": {Model: "seedance", CreatePath: "/v1/video/seedance/text-to-video", statusPrefix: "/v1/video/seedance/tasks/"},
	"newmodel": {Model: "newmodel", CreatePath: "/v1/video/newmodel/text-to-video", statusPrefix: "/v1/video/newmodel/tasks/"},
}

// SpecFor returns the endpoint spec for model.
func SpecFor(model string) (Spec, error) {
	spec, ok := specs[model]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnsupportedModel, model)
	}
	return spec, nil
}

// StatusPath returns the status endpoint for a provider task id.
func (s Spec) StatusPath(taskID string) string {
	return s.statusPrefix + url.PathEscape(taskID)
}
