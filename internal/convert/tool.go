package convert

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/rdf-hub/rdf-hub/internal/format"
)

// ToolProfile 描述一个通过 stdin/stdout 工作的外部转换工具。
type ToolProfile struct {
	Name string
	// Inputs/Outputs 把格式 Key 映射为工具自己的语法名称。
	Inputs  map[string]string
	Outputs map[string]string
	// Args 生成命令行参数，输入始终从 stdin 读取。
	Args func(in, out, base string) []string
}

// Riot 是 Apache Jena 的 riot 命令。
var Riot = ToolProfile{
	Name: "riot",
	Inputs: map[string]string{
		format.Turtle.Key:   "Turtle",
		format.NTriples.Key: "N-Triples",
		format.NQuads.Key:   "N-Quads",
		format.TriG.Key:     "TriG",
		format.N3.Key:       "N3",
		format.RDFXML.Key:   "RDF/XML",
		format.JSONLD.Key:   "JSON-LD",
		format.RDFJSON.Key:  "RDF/JSON",
		format.TriX.Key:     "TriX",
	},
	Outputs: map[string]string{
		format.Turtle.Key:   "Turtle",
		format.NTriples.Key: "N-Triples",
		format.NQuads.Key:   "N-Quads",
		format.TriG.Key:     "TriG",
		format.RDFXML.Key:   "RDF/XML",
		format.JSONLD.Key:   "JSON-LD",
		format.RDFJSON.Key:  "RDF/JSON",
		format.TriX.Key:     "TriX",
	},
	Args: func(in, out, base string) []string {
		args := []string{"--syntax=" + in, "--output=" + out}
		if base != "" {
			args = append(args, "--base="+base)
		}
		return args
	},
}

// Rapper 是 Raptor 的 rapper 命令，额外支持输出 HTML 表格。
var Rapper = ToolProfile{
	Name: "rapper",
	Inputs: map[string]string{
		format.Turtle.Key:   "turtle",
		format.NTriples.Key: "ntriples",
		format.NQuads.Key:   "nquads",
		format.TriG.Key:     "trig",
		format.RDFXML.Key:   "rdfxml",
		format.RDFJSON.Key:  "json",
	},
	Outputs: map[string]string{
		format.Turtle.Key:   "turtle",
		format.NTriples.Key: "ntriples",
		format.NQuads.Key:   "nquads",
		format.RDFXML.Key:   "rdfxml-abbrev",
		format.RDFJSON.Key:  "json",
		format.HTML.Key:     "html",
	},
	Args: func(in, out, base string) []string {
		if base == "" {
			base = "urn:rdf-hub:stdin"
		}
		return []string{"--quiet", "-i", in, "-o", out, "-", base}
	},
}

// Profiles 按名称索引内置工具。
var Profiles = map[string]ToolProfile{
	Riot.Name:   Riot,
	Rapper.Name: Rapper,
}

// ProfileNames 返回 riot|rapper 形式的名称列表，用于配置校验提示。
func ProfileNames() string {
	names := make([]string, 0, len(Profiles))
	for name := range Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

// Tool 是绑定到具体可执行文件的 ToolProfile。
type Tool struct {
	profile  ToolProfile
	path     string
	resolved string
}

// NewTool 解析可执行文件路径；path 为空时在 $PATH 中查找 profile.Name。
// 找不到可执行文件时 Tool 仍可构造，但 Available 返回 false。
func NewTool(profile ToolProfile, path string) *Tool {
	if strings.TrimSpace(path) == "" {
		path = profile.Name
	}
	t := &Tool{profile: profile, path: path}
	if resolved, err := exec.LookPath(path); err == nil {
		t.resolved = resolved
	}
	return t
}

func (t *Tool) Name() string { return t.profile.Name }

// Path 返回配置的可执行文件路径。
func (t *Tool) Path() string { return t.path }

// Available 表示可执行文件是否存在。
func (t *Tool) Available() bool { return t.resolved != "" }

func (t *Tool) Supports(from, to format.Format) bool {
	if !t.Available() {
		return false
	}
	_, okIn := t.profile.Inputs[from.Key]
	_, okOut := t.profile.Outputs[to.Key]
	return okIn && okOut
}

func (t *Tool) Convert(ctx context.Context, job Job) ([]byte, error) {
	in, okIn := t.profile.Inputs[job.From.Key]
	out, okOut := t.profile.Outputs[job.To.Key]
	if !okIn || !okOut {
		return nil, fmt.Errorf("%s cannot convert %s to %s", t.profile.Name, job.From.Key, job.To.Key)
	}
	if !t.Available() {
		return nil, fmt.Errorf("%s: executable %q not found", t.profile.Name, t.path)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.resolved, t.profile.Args(in, out, job.BaseURI)...)
	cmd.Stdin = bytes.NewReader(job.Input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", t.profile.Name, err, tail(stderr.String(), 512))
	}
	return stdout.Bytes(), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
