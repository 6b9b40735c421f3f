package merge

import (
	"fmt"

	"github.com/markro49/annotation-tools/classfile"
	"github.com/markro49/annotation-tools/scene"
)

// The resolver maps declaration contexts to the class file's type
// annotation target encoding. Every function is pure except the two
// call-site resolvers, which consult the classifier's offset tables to
// pick the constructor or plain discriminator.

// A bound index of -1 addresses the type parameter itself, not one of
// its bounds.
func classBoundTarget(param, bound int) classfile.TypeRef {
	if bound == -1 {
		return classfile.TypeRef{Sort: classfile.TargetClassTypeParam, ParamIndex: param}
	}
	return classfile.TypeRef{
		Sort:       classfile.TargetClassTypeParamBound,
		ParamIndex: param,
		BoundIndex: bound,
	}
}

func methodBoundTarget(param, bound int) classfile.TypeRef {
	if bound == -1 {
		return classfile.TypeRef{Sort: classfile.TargetMethodTypeParam, ParamIndex: param}
	}
	return classfile.TypeRef{
		Sort:       classfile.TargetMethodTypeParamBound,
		ParamIndex: param,
		BoundIndex: bound,
	}
}

func fieldTarget() classfile.TypeRef {
	return classfile.TypeRef{Sort: classfile.TargetField}
}

func returnTarget() classfile.TypeRef {
	return classfile.TypeRef{Sort: classfile.TargetMethodReturn}
}

func receiverTarget() classfile.TypeRef {
	return classfile.TypeRef{Sort: classfile.TargetMethodReceiver}
}

func paramTarget(index int) classfile.TypeRef {
	return classfile.TypeRef{Sort: classfile.TargetMethodFormalParam, ParamIndex: index}
}

func localTarget(loc scene.LocalLocation) classfile.TypeRef {
	return classfile.TypeRef{
		Sort: classfile.TargetLocalVariable,
		Locals: []classfile.LocalRange{
			{Start: loc.Start, End: loc.End, Slot: loc.Slot},
		},
	}
}

func newTarget(offset int) classfile.TypeRef {
	return classfile.TypeRef{Sort: classfile.TargetNew, Offset: offset}
}

func castTarget(offset, typeIndex int) classfile.TypeRef {
	return classfile.TypeRef{Sort: classfile.TargetCast, Offset: offset, ArgIndex: typeIndex}
}

func instanceOfTarget(offset int) classfile.TypeRef {
	return classfile.TypeRef{Sort: classfile.TargetInstanceOf, Offset: offset}
}

// callTarget resolves a type argument at an invocation site: constructor
// invocation when the classifier marked the offset, plain method
// invocation otherwise.
func callTarget(ix *CallSiteIndex, sig string, offset, typeIndex int) classfile.TypeRef {
	sort := byte(classfile.TargetMethodInvokeArg)
	if ix.IsConstructor(sig, offset) {
		sort = classfile.TargetConstructorInvokeArg
	}
	return classfile.TypeRef{Sort: sort, Offset: offset, ArgIndex: typeIndex}
}

// refTarget resolves a method-reference expression site: constructor
// reference when the classifier marked the offset, plain method reference
// otherwise.
func refTarget(ix *CallSiteIndex, sig string, offset int) classfile.TypeRef {
	sort := byte(classfile.TargetMethodRef)
	if ix.IsConstructor(sig, offset) {
		sort = classfile.TargetConstructorRef
	}
	return classfile.TypeRef{Sort: sort, Offset: offset}
}

// innerPath parses a scene inner-type path into the class file encoding.
func innerPath(path string) (classfile.TypePath, error) {
	p, err := classfile.ParseTypePath(path)
	if err != nil {
		return nil, fmt.Errorf("merge: bad inner type path %q: %w", path, err)
	}
	return p, nil
}
