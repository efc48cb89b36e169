package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemory(t *testing.T) {
	q := NewMemory[int](2)

	assert.True(t, q.Publish(1))
	assert.True(t, q.Publish(2))
	assert.False(t, q.Publish(3), "full queue drops")
	assert.Equal(t, 2, q.Len())

	assert.Equal(t, 1, <-q.C())
	assert.True(t, q.Publish(4))

	q.Close()
	q.Close()
	assert.False(t, q.Publish(5), "closed queue drops")

	got := make([]int, 0)
	for v := range q.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{2, 4}, got)
}

func TestNewMemory_MinimumSize(t *testing.T) {
	q := NewMemory[string](0)
	assert.True(t, q.Publish("a"))
	assert.False(t, q.Publish("b"))
}

func TestMemory_Dropped(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		publishes int
		drain     int
		closed    bool
		want      int64
	}{
		{"room left", 3, 2, 0, false, 0},
		{"full", 2, 5, 0, false, 3},
		{"drained in between", 1, 3, 1, false, 1},
		{"closed is not counted", 2, 4, 0, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewMemory[int](tt.size)
			if tt.closed {
				q.Close()
			}
			for i := 0; i < tt.publishes; i++ {
				q.Publish(i)
				if i < tt.drain {
					<-q.C()
				}
			}
			assert.Equal(t, tt.want, q.Dropped())
		})
	}
}
