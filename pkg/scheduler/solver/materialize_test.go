package solver

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paike/paike/pkg/model"
	"github.com/paike/paike/pkg/scheduler/grid"
)

func TestMaterialize_Roles(t *testing.T) {
	class := &model.Class{ID: uuid.New(), Name: "一年级1班", Grade: 1}
	single := lessonFor("数学", class, 1, 0)
	double := lessonFor("语文", class, 0, 1)

	g := grid.New(5, 7)
	g.Place(single, 0, 1, false)
	g.Place(double, 1, 2, true)

	slots := Materialize(g, []*model.Class{class}, nil)
	require.Len(t, slots, 3)

	byPeriod := make(map[[2]int]model.SlotRecord)
	for _, s := range slots {
		byPeriod[[2]int{s.Day, s.PeriodNumber}] = s
	}

	s1 := byPeriod[[2]int{0, 1}]
	assert.Equal(t, single.ID, s1.LessonID)
	assert.False(t, s1.IsDoubleStart)
	assert.False(t, s1.IsDoubleEnd)

	d1 := byPeriod[[2]int{1, 2}]
	assert.Equal(t, double.ID, d1.LessonID)
	assert.True(t, d1.IsDoubleStart)
	assert.False(t, d1.IsDoubleEnd)

	d2 := byPeriod[[2]int{1, 3}]
	assert.Equal(t, double.ID, d2.LessonID)
	assert.False(t, d2.IsDoubleStart)
	assert.True(t, d2.IsDoubleEnd)
}

func TestMaterialize_DuplicateLastWriteWins(t *testing.T) {
	class := &model.Class{ID: uuid.New(), Name: "一年级1班", Grade: 1}
	first := lessonFor("数学", class, 1, 0)
	second := lessonFor("语文", class, 1, 0)

	g := grid.New(5, 7)
	g.Place(first, 0, 1, false)
	g.Place(second, 0, 1, false)

	slots := Materialize(g, []*model.Class{class}, nil)
	require.Len(t, slots, 1, "同一单元多名占用者按键去重")
	assert.Equal(t, second.ID, slots[0].LessonID, "保留最后写入者")
}

func TestMaterialize_SkipsUnknownClasses(t *testing.T) {
	class := &model.Class{ID: uuid.New(), Name: "一年级1班", Grade: 1}
	other := &model.Class{ID: uuid.New(), Name: "一年级2班", Grade: 1}
	l := lessonFor("数学", class, 1, 0)

	g := grid.New(5, 7)
	g.Place(l, 0, 1, false)

	slots := Materialize(g, []*model.Class{other}, nil)
	assert.Empty(t, slots, "仅输出入参班级的课位")
}
