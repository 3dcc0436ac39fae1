package expander

import (
	"testing"

	"github.com/google/uuid"

	"github.com/paike/paike/pkg/model"
)

func makeLesson(name string, singles, doubles, teachers, classes int) *model.Lesson {
	l := &model.Lesson{
		ID:              uuid.New(),
		Name:            name,
		SubjectIDs:      []uuid.UUID{uuid.New()},
		NumberOfSingles: singles,
		NumberOfDoubles: doubles,
	}
	for i := 0; i < teachers; i++ {
		l.TeacherIDs = append(l.TeacherIDs, uuid.New())
	}
	for i := 0; i < classes; i++ {
		l.ClassIDs = append(l.ClassIDs, uuid.New())
	}
	return l
}

func TestExpand(t *testing.T) {
	l := makeLesson("数学", 3, 2, 1, 1)

	tasks := Expand([]*model.Lesson{l})
	if len(tasks) != 5 {
		t.Fatalf("任务数 = %d, expected 5", len(tasks))
	}

	doubles := 0
	for _, task := range tasks {
		if task.IsDouble {
			doubles++
		}
		if task.Lesson != l {
			t.Error("任务应引用原课程")
		}
	}
	if doubles != 2 {
		t.Errorf("连堂任务数 = %d, expected 2", doubles)
	}
}

func TestOrderForBacktracking_DoublesFirst(t *testing.T) {
	lessons := []*model.Lesson{
		makeLesson("语文", 2, 0, 1, 1),
		makeLesson("数学", 1, 2, 1, 1),
		makeLesson("体育", 1, 1, 1, 2),
	}

	tasks := OrderForBacktracking(lessons)
	if len(tasks) != 7 {
		t.Fatalf("任务数 = %d, expected 7", len(tasks))
	}

	// 全局连堂在先
	seenSingle := false
	for _, task := range tasks {
		if !task.IsDouble {
			seenSingle = true
		} else if seenSingle {
			t.Fatal("连堂任务必须全部排在单节任务之前")
		}
	}
}

func TestOrderForBacktracking_HardestLessonFirst(t *testing.T) {
	easy := makeLesson("语文", 2, 0, 1, 1)
	hard := makeLesson("数学", 1, 2, 1, 1)

	tasks := OrderForBacktracking([]*model.Lesson{easy, hard})

	// 连堂数多的课程（数学）的连堂任务排最前
	if tasks[0].Lesson != hard {
		t.Errorf("最难课程应排最前, got %s", tasks[0].Lesson.Name)
	}
}

func TestOrderForGreedy_SharedEntitiesFirst(t *testing.T) {
	narrow := makeLesson("语文", 2, 0, 1, 1)
	wide := makeLesson("年级会", 1, 0, 2, 4) // 跨4个班级2位教师

	tasks := OrderForGreedy([]*model.Lesson{narrow, wide})
	if tasks[0].Lesson != wide {
		t.Errorf("共享实体多的课程应先排, got %s", tasks[0].Lesson.Name)
	}
}

func TestOrder_Deterministic(t *testing.T) {
	lessons := []*model.Lesson{
		makeLesson("语文", 2, 1, 1, 1),
		makeLesson("数学", 2, 1, 1, 1),
		makeLesson("英语", 1, 0, 1, 1),
	}

	a := OrderForBacktracking(lessons)
	b := OrderForBacktracking(lessons)
	if len(a) != len(b) {
		t.Fatal("两次展开长度不一致")
	}
	for i := range a {
		if a[i].Lesson != b[i].Lesson || a[i].IsDouble != b[i].IsDouble {
			t.Fatalf("第%d个任务不一致：稳定排序被破坏", i)
		}
	}
}
