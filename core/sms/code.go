package sms

import (
	"math/rand"
	"strings"
)

// CodeGenerator 生成定长数字验证码
// 沙箱模式返回固定验证码，便于开发和联调。
type CodeGenerator struct {
	length  int
	sandbox bool
	fixed   string
	rnd     *rand.Rand
}

// NewCodeGenerator 创建验证码生成器
func NewCodeGenerator(length int, sandbox bool, fixed string, seed int64) *CodeGenerator {
	if length <= 0 {
		length = 6
	}
	return &CodeGenerator{
		length:  length,
		sandbox: sandbox,
		fixed:   fixed,
		rnd:     rand.New(rand.NewSource(seed)),
	}
}

// Generate 生成一个验证码
func (g *CodeGenerator) Generate() string {
	if g.sandbox && g.fixed != "" {
		return g.fixed
	}
	var b strings.Builder
	for i := 0; i < g.length; i++ {
		b.WriteByte(byte('0' + g.rnd.Intn(10)))
	}
	return b.String()
}
