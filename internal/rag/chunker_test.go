package rag

import (
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestChunker_Split(t *testing.T) {
	Convey("文本切分测试", t, func() {
		Convey("短文本整体作为单个切片返回", func() {
			chunker := NewChunker(1200, 200)
			chunks := chunker.Split("Our refund window is 14 days.")

			So(chunks, ShouldHaveLength, 1)
			So(chunks[0], ShouldEqual, "Our refund window is 14 days.")
		})

		Convey("空文本返回空结果", func() {
			chunker := NewChunker(1200, 200)
			So(chunker.Split(""), ShouldBeEmpty)
			So(chunker.Split("   \n\t  "), ShouldBeEmpty)
		})

		Convey("3000 字符文本按 1200/200 切成 3 片且保持原文顺序", func() {
			text := strings.Repeat("a", 3000)
			chunker := NewChunker(1200, 200)
			chunks := chunker.Split(text)

			So(chunks, ShouldHaveLength, 3)
			So(chunks[0], ShouldHaveLength, 1200)
			// 相邻切片带重叠，拼接顺序与原文一致
			So(strings.HasPrefix(text, chunks[0]), ShouldBeTrue)
			So(chunks[2], ShouldEndWith, "a")
		})

		Convey("非末尾切片回退到句末标点", func() {
			sentence := strings.Repeat("b", 80) + ". "
			text := strings.Repeat(sentence, 30)
			chunker := NewChunker(200, 50)
			chunks := chunker.Split(text)

			So(len(chunks), ShouldBeGreaterThan, 1)
			for _, chunk := range chunks[:len(chunks)-1] {
				So(strings.HasSuffix(chunk, "."), ShouldBeTrue)
			}
		})

		Convey("所有切片非空且循环必然终止", func() {
			texts := []string{
				strings.Repeat("c", 999),
				strings.Repeat("слово ", 500),
				strings.Repeat("x.", 2000),
			}
			chunker := NewChunker(100, 30)
			for _, text := range texts {
				chunks := chunker.Split(text)
				So(len(chunks), ShouldBeGreaterThan, 0)
				for _, chunk := range chunks {
					So(strings.TrimSpace(chunk), ShouldNotBeEmpty)
				}
			}
		})

		Convey("多字节文本不会被从字符中间截断", func() {
			text := strings.Repeat("привет мир. ", 200)
			chunker := NewChunker(150, 40)
			chunks := chunker.Split(text)

			for _, chunk := range chunks {
				So(strings.ToValidUTF8(chunk, "?"), ShouldEqual, chunk)
			}
		})

		Convey("非法参数回退到默认值", func() {
			chunker := NewChunker(0, -1)
			So(chunker.chunkSize, ShouldEqual, DefaultChunkSize)
			So(chunker.overlap, ShouldEqual, DefaultChunkOverlap)

			// overlap 不小于 chunk_size 时强制压缩，保证循环推进
			chunker = NewChunker(100, 100)
			So(chunker.overlap, ShouldBeLessThan, chunker.chunkSize)
		})
	})
}

func TestClean(t *testing.T) {
	Convey("文本清洗测试", t, func() {
		Convey("折叠连续空白", func() {
			So(Clean("a  b\t\tc\n\nd"), ShouldEqual, "a b c d")
		})

		Convey("去除提取噪音字符并保留标点", func() {
			So(Clean("Цена: 5000₽ — ок!"), ShouldEqual, "Цена: 5000 ок!")
		})

		Convey("去除首尾空白", func() {
			So(Clean("  hello  "), ShouldEqual, "hello")
		})
	})
}
