package job

import (
	"encoding/json"

	"github.com/Darkness4/mp4-concat-go/video/concat"
	"github.com/Darkness4/mp4-concat-go/video/naming"
	"github.com/Darkness4/mp4-concat-go/video/segment"
)

// Params represents the parameters of a concatenation job.
type Params struct {
	SourcePath        string            `yaml:"sourcePath,omitempty"        json:"sourcePath"`
	Filter            string            `yaml:"filter,omitempty"            json:"filter"`
	Sort              segment.SortMode  `yaml:"sort,omitempty"              json:"sort"`
	NumOfConcatFiles  int               `yaml:"numOfConcatFiles,omitempty"  json:"numOfConcatFiles"`
	MinFiles          int               `yaml:"minFiles,omitempty"          json:"minFiles"`
	OutputPath        string            `yaml:"outputPath,omitempty"        json:"outputPath"`
	DeleteAfterConcat bool              `yaml:"deleteAfterConcat,omitempty" json:"deleteAfterConcat"`
	NameMode          naming.Mode       `yaml:"nameMode,omitempty"          json:"nameMode"`
	Extension         string            `yaml:"extension,omitempty"         json:"extension"`
	Method            concat.Method     `yaml:"method,omitempty"            json:"method"`
	Overwrite         bool              `yaml:"overwrite,omitempty"         json:"overwrite"`
	FastStart         bool              `yaml:"fastStart,omitempty"         json:"fastStart"`
	PreserveTimes     bool              `yaml:"preserveTimes,omitempty"     json:"preserveTimes"`
	DryRun            bool              `yaml:"dryRun,omitempty"            json:"dryRun"`
	Labels            map[string]string `yaml:"labels,omitempty"            json:"labels,omitempty"`
}

func (p *Params) String() string {
	out, _ := json.MarshalIndent(p, "", "  ")
	return string(out)
}

// OptionalParams represents the optional parameters of a concatenation job.
type OptionalParams struct {
	SourcePath        *string           `yaml:"sourcePath,omitempty"`
	Filter            *string           `yaml:"filter,omitempty"`
	Sort              *segment.SortMode `yaml:"sort,omitempty"`
	NumOfConcatFiles  *int              `yaml:"numOfConcatFiles,omitempty"`
	MinFiles          *int              `yaml:"minFiles,omitempty"`
	OutputPath        *string           `yaml:"outputPath,omitempty"`
	DeleteAfterConcat *bool             `yaml:"deleteAfterConcat,omitempty"`
	NameMode          *naming.Mode      `yaml:"nameMode,omitempty"`
	Extension         *string           `yaml:"extension,omitempty"`
	Method            *concat.Method    `yaml:"method,omitempty"`
	Overwrite         *bool             `yaml:"overwrite,omitempty"`
	FastStart         *bool             `yaml:"fastStart,omitempty"`
	PreserveTimes     *bool             `yaml:"preserveTimes,omitempty"`
	DryRun            *bool             `yaml:"dryRun,omitempty"`
	Labels            map[string]string `yaml:"labels,omitempty"`
}

// DefaultParams is the default set of parameters.
var DefaultParams = Params{
	SourcePath:        ".",
	Filter:            segment.DefaultFilter,
	Sort:              segment.SortReverse,
	NumOfConcatFiles:  0,
	MinFiles:          1,
	OutputPath:        "concat.mp4",
	DeleteAfterConcat: false,
	NameMode:          naming.ModeFull,
	Extension:         "mp4",
	Method:            concat.MethodDemuxer,
	Overwrite:         false,
	FastStart:         false,
	PreserveTimes:     false,
	DryRun:            false,
	Labels:            nil,
}

// Override applies the values from the OptionalParams to the Params.
func (override *OptionalParams) Override(params *Params) {
	if override.SourcePath != nil {
		params.SourcePath = *override.SourcePath
	}
	if override.Filter != nil {
		params.Filter = *override.Filter
	}
	if override.Sort != nil {
		params.Sort = *override.Sort
	}
	if override.NumOfConcatFiles != nil {
		params.NumOfConcatFiles = *override.NumOfConcatFiles
	}
	if override.MinFiles != nil {
		params.MinFiles = *override.MinFiles
	}
	if override.OutputPath != nil {
		params.OutputPath = *override.OutputPath
	}
	if override.DeleteAfterConcat != nil {
		params.DeleteAfterConcat = *override.DeleteAfterConcat
	}
	if override.NameMode != nil {
		params.NameMode = *override.NameMode
	}
	if override.Extension != nil {
		params.Extension = *override.Extension
	}
	if override.Method != nil {
		params.Method = *override.Method
	}
	if override.Overwrite != nil {
		params.Overwrite = *override.Overwrite
	}
	if override.FastStart != nil {
		params.FastStart = *override.FastStart
	}
	if override.PreserveTimes != nil {
		params.PreserveTimes = *override.PreserveTimes
	}
	if override.DryRun != nil {
		params.DryRun = *override.DryRun
	}
	if override.Labels != nil {
		if params.Labels == nil {
			params.Labels = make(map[string]string, len(override.Labels))
		}
		for k, v := range override.Labels {
			params.Labels[k] = v
		}
	}
}

// Clone creates a deep copy of the Params struct.
func (p *Params) Clone() *Params {
	clone := *p
	if p.Labels != nil {
		clone.Labels = make(map[string]string, len(p.Labels))
		for k, v := range p.Labels {
			clone.Labels[k] = v
		}
	}
	return &clone
}
