package rag

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding/charmap"

	"thecloser/internal/model/knowledge"
)

// Extract 按声明的文件类型提取纯文本
// 纯读取，无副作用；文件整体读入内存（上游限制了文件大小上限）
func Extract(path string, fileType knowledge.FileType) (string, error) {
	switch fileType {
	case knowledge.FileTypePDF:
		return extractPDF(path)
	case knowledge.FileTypeDocx:
		return extractDocx(path)
	case knowledge.FileTypeTxt, knowledge.FileTypeMd:
		return extractPlain(path)
	default:
		return "", &ExtractionError{Path: path, Reason: "unsupported file type " + string(fileType)}
	}
}

// extractPDF 逐页提取文本，页间用空行分隔
func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", &ExtractionError{Path: path, Reason: "open pdf", Err: err}
	}
	defer f.Close()

	var sb strings.Builder
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Warn().Str("path", path).Int("page", i).Err(err).Msg("failed to extract pdf page")
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	log.Info().Str("path", path).Int("pages", total).Msg("pdf extracted")
	return sb.String(), nil
}

// extractDocx 先拼段落文本，再拼表格单元格（行内空格分隔，行间换行）
func extractDocx(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &ExtractionError{Path: path, Reason: "open docx", Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", &ExtractionError{Path: path, Reason: "stat docx", Err: err}
	}

	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return "", &ExtractionError{Path: path, Reason: "parse docx", Err: err}
	}

	var paragraphs strings.Builder
	var tables strings.Builder

	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			paragraphs.WriteString(it.String())
			paragraphs.WriteString("\n")
		case *docx.Table:
			for _, row := range it.TableRows {
				for _, cell := range row.TableCells {
					for _, par := range cell.Paragraphs {
						tables.WriteString(par.String())
						tables.WriteString(" ")
					}
				}
				tables.WriteString("\n")
			}
		}
	}

	log.Info().Str("path", path).Msg("docx extracted")
	return paragraphs.String() + tables.String(), nil
}

// plainDecoders 纯文本回退解码顺序，UTF-8 校验失败后逐个尝试
var plainDecoders = []struct {
	name string
	enc  *charmap.Charmap
}{
	{"windows-1251", charmap.Windows1251},
	{"windows-1252", charmap.Windows1252},
	{"iso-8859-1", charmap.ISO8859_1},
}

// extractPlain 读取纯文本，按固定顺序尝试编码
// 所有编码都失败时做有损解码（丢弃非法字节）而不是报错
func extractPlain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ExtractionError{Path: path, Reason: "read file", Err: err}
	}

	if utf8.Valid(data) {
		return string(data), nil
	}

	for _, d := range plainDecoders {
		decoded, derr := decodeStrict(d.enc, data)
		if derr == nil {
			log.Info().Str("path", path).Str("encoding", d.name).Msg("text file decoded")
			return decoded, nil
		}
	}

	log.Warn().Str("path", path).Msg("text file decoded lossily")
	return strings.ToValidUTF8(string(data), ""), nil
}

func decodeStrict(cm *charmap.Charmap, data []byte) (string, error) {
	out, err := cm.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	// charmap 把未定义字节映射为替换符而不报错，这里视为解码失败
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", errors.New("undecodable bytes")
	}
	return string(out), nil
}
