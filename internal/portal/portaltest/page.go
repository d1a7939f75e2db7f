package portaltest

import (
	"fmt"
	"strings"
)

// Names of the answer fields rendered by EvaluationPage.
const (
	FieldScore      = "0000000401"
	FieldMulti      = "0000000406"
	FieldConstraint = "0000000407"
	FieldComment    = "0000000408"
)

var FieldChoices = [4]string{"0000000402", "0000000403", "0000000404", "0000000405"}

func radios(b *strings.Builder, name string, options ...string) {
	for _, option := range options {
		fmt.Fprintf(b, `<label><input type="radio" name="%s" value="%s">%s</label>`+"\n", name, option, option)
	}
}

// EvaluationPage renders an evaluation page in the portal's current template: 10
// named elements of page chrome (meta, form, hidden inputs), then the score input, four single-choice
// questions, the multi-select, the constraint question and the comment box.
// It has exactly 46 named elements.
func EvaluationPage(token string) string {
	b := &strings.Builder{}
	b.WriteString(`<html><head><meta name="viewport" content="width=device-width"></head><body>
<form id="evaluationForm" name="evaluationForm">
`)
	fmt.Fprintf(b, `<input type="hidden" id="tokenValue" name="tokenValue" value="%s"/>`+"\n", token)
	for _, name := range []string{"wjbm", "ktid", "tjcs", "xnxqh", "kch", "kxh", "jsh"} {
		fmt.Fprintf(b, `<input type="hidden" name="%s" value=""/>`+"\n", name)
	}
	b.WriteString(`<table class="table">
<tr><td>总体评分</td><td><input type="text" name="` + FieldScore + `" class="form-control" placeholder="请输入1-100的整数"></td></tr>
<tr><td>教学态度</td><td>
`)
	radios(b, FieldChoices[0], "A_完全符合", "B_比较符合", "C_一般", "D_不太符合", "E_完全不符合")
	b.WriteString("</td></tr>\n<tr><td>教学内容</td><td>\n")
	radios(b, FieldChoices[1], "A_完全同意", "B_比较同意", "C_一般", "D_不太同意", "E_完全不同意")
	b.WriteString("</td></tr>\n<tr><td>教学方法</td><td>\n")
	radios(b, FieldChoices[2], "A_完全同意", "B_比较同意", "C_一般", "D_不太同意", "E_完全不同意")
	b.WriteString("</td></tr>\n<tr><td>教学反馈</td><td>\n")
	radios(b, FieldChoices[3],
		"A_老师通过综合教务发布了问卷调查并及时改进教学",
		"B_老师通过其他方式收集意见",
		"C_老师没有收集意见",
		"D_不清楚",
	)
	b.WriteString("</td></tr>\n<tr><td>课程特点</td><td>\n")
	for _, option := range []string{
		"A_任课老师讲课生动",
		"B_课堂上开展了有效的研讨互动教学",
		"C_课程进度安排合理，详略得当",
		"D_课程内容具有前沿性和时代性",
		"E_任课老师肯花时间课外跟学生交流",
		"F_任课老师鼓励学生独立思考，注重培养学生创新精神",
		"G_提供了丰富且有效的教学资料",
		"H_课程考核方式合理",
		"I_课程具有挑战性",
		"J_任课老师就实验操作或实践活动的规范性及安全性做了细致要求",
		"K_以上均无",
	} {
		fmt.Fprintf(b, `<label><input type="checkbox" name="%s" value="%s">%s</label>`+"\n", FieldMulti, option, option)
	}
	b.WriteString("</td></tr>\n<tr><td>是否必修</td><td>\n")
	radios(b, FieldConstraint, "A_必须是", "B_是", "C_否", "D_不清楚")
	b.WriteString(`</td></tr>
<tr><td>意见建议</td><td><textarea name="` + FieldComment + `" class="form-control value_element" style="width:300%;height:60px;" maxlength="500"></textarea></td></tr>
</table>
</form>
</body></html>`)
	return b.String()
}
