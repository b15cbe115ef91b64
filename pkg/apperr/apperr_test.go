package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := Parse("classify", errors.New("unexpected token"))
	wrapped := fmt.Errorf("分类失败: %w", base)

	if !Is(wrapped, KindParse) {
		t.Fatalf("expected parse kind through wrapping")
	}
	if Is(wrapped, KindValidation) {
		t.Fatalf("did not expect validation kind")
	}
	if got := base.Error(); got != "classify: unexpected token" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestKindOfPlainError(t *testing.T) {
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatalf("plain error should carry no kind")
	}
}

func TestValidationMessage(t *testing.T) {
	err := Validation("send message", "消息内容不能为空")
	if err.Error() != "send message: 消息内容不能为空" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
