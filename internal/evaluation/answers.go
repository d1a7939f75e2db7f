package evaluation

import (
	"net/url"
)

// AnswerSet is the fixed set of answers submitted for every evaluation.
type AnswerSet struct {
	Score      string
	Choices    [4]string
	Multi      []string
	Constraint string
	Comment    string
}

const DefaultComment = "这门课程的教学效果很好,老师热爱教学,教学方式生动有趣,课程内容丰富且贴合时代特点。"

// Optimal returns the best rating for every question.
func Optimal() AnswerSet {
	return AnswerSet{
		Score: "100",
		Choices: [4]string{
			"A_完全符合",
			"A_完全同意",
			"A_完全同意",
			"A_老师通过综合教务发布了问卷调查并及时改进教学",
		},
		Multi: []string{
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
		},
		Constraint: "A_必须是",
		Comment:    DefaultComment,
	}
}

// WithComment replaces the free text comment, an empty comment keeps the current
// one.
func (a AnswerSet) WithComment(comment string) AnswerSet {
	if comment != "" {
		a.Comment = comment
	}
	return a
}

// Values keys every answer by the field name its slot resolved to. Multi-select
// options share the same key.
func (a AnswerSet) Values(resolution Resolution) url.Values {
	values := url.Values{}
	values.Set(resolution[SlotScore], a.Score)
	choiceSlots := [4]Slot{SlotChoice1, SlotChoice2, SlotChoice3, SlotChoice4}
	for i, slot := range choiceSlots {
		values.Set(resolution[slot], a.Choices[i])
	}
	for _, option := range a.Multi {
		values.Add(resolution[SlotMulti], option)
	}
	values.Set(resolution[SlotConstraint], a.Constraint)
	values.Set(resolution[SlotComment], a.Comment)
	return values
}
