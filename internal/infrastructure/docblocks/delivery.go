package docblocks

import (
	"os"
	"path/filepath"

	"GeoTool/internal/domain"
)

// PreviewBlocks is how many artifact blocks a delivery section carries.
const PreviewBlocks = 20

// Delivery lays out a delivery document: an overview, then for every stage and
// the pressure test found in results a heading, the attachment name and a
// preview of the artifact. Unreadable artifacts only lose their preview.
func Delivery(projectID, clientName string, results map[string]string) []Block {
	blocks := []Block{
		H(1, "项目概览"),
		P("客户名称：" + clientName),
		P("项目ID：" + projectID),
	}

	type section struct{ key, title string }
	sections := make([]section, 0, len(domain.Stages)+1)
	for _, stage := range domain.Stages {
		sections = append(sections, section{string(stage.Tag), stage.Title})
	}
	sections = append(sections, section{domain.ResultPressureTest, "压力测试报告"})

	for _, sec := range sections {
		path, ok := results[sec.key]
		if !ok {
			continue
		}
		blocks = append(blocks, H(2, sec.title))
		if path == "" {
			blocks = append(blocks, P("附件：无"))
			continue
		}
		blocks = append(blocks, P("附件："+filepath.Base(path)))

		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		preview, err := FromMarkdown(raw)
		if err != nil {
			continue
		}
		blocks = append(blocks, Limit(preview, PreviewBlocks)...)
	}
	return blocks
}
