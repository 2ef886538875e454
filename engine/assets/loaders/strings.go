package loaders

// Type tree nodes name their type and field either through the serialized
// file's local string buffer or, when the high bit of the offset is set,
// through this table shipped with the Unity runtime. Offsets are the
// cumulative byte positions of the NUL separated entries.
var commonStringList = []string{
	"AABB", "AnimationClip", "AnimationCurve", "AnimationState", "Array",
	"Base", "BitField", "bitset", "bool", "char", "ColorRGBA", "Component",
	"data", "deque", "double", "dynamic_array", "FastPropertyName", "first",
	"float", "Font", "GameObject", "Generic Mono", "GradientNEW", "GUID",
	"GUIStyle", "int", "list", "long long", "map", "Matrix4x4f", "MdFour",
	"MonoBehaviour", "MonoScript", "m_ByteSize", "m_Curve",
	"m_EditorClassIdentifier", "m_EditorHideFlags", "m_Enabled",
	"m_ExtensionPtr", "m_GameObject", "m_Index", "m_IsArray", "m_IsStatic",
	"m_MetaFlag", "m_Name", "m_ObjectHideFlags", "m_PrefabInternal",
	"m_PrefabParentObject", "m_Script", "m_StaticEditorFlags", "m_Type",
	"m_Version", "Object", "pair", "PPtr<Component>", "PPtr<GameObject>",
	"PPtr<Material>", "PPtr<MonoBehaviour>", "PPtr<MonoScript>",
	"PPtr<Object>", "PPtr<Prefab>", "PPtr<Sprite>", "PPtr<TextAsset>",
	"PPtr<Texture>", "PPtr<Texture2D>", "PPtr<Transform>", "Prefab",
	"Quaternionf", "Rectf", "RectInt", "RectOffset", "second", "set", "short",
	"size", "SInt16", "SInt32", "SInt64", "SInt8", "staticvector", "string",
	"TextAsset", "TextMesh", "Texture", "Texture2D", "Transform",
	"TypelessData", "UInt16", "UInt32", "UInt64", "UInt8", "unsigned int",
	"unsigned long long", "unsigned short", "vector", "Vector2f", "Vector3f",
	"Vector4f", "m_ScriptingClassIdentifier", "Gradient", "Type*",
	"int2_storage", "int3_storage", "BoundsInt", "m_CorrespondingSourceObject",
	"m_PrefabInstance", "m_PrefabAsset", "FileSize", "Hash128",
}

var commonStrings = func() map[uint32]string {
	m := make(map[uint32]string, len(commonStringList))
	off := uint32(0)
	for _, s := range commonStringList {
		m[off] = s
		off += uint32(len(s)) + 1
	}
	return m
}()

const commonStringFlag = 0x80000000

// CommonStringOffset returns the offset of s in the common string table,
// with the flag bit set, as it appears in a type tree node.
func CommonStringOffset(s string) (uint32, bool) {
	for off, v := range commonStrings {
		if v == s {
			return off | commonStringFlag, true
		}
	}
	return 0, false
}

// lookupString resolves a type tree string offset.
func lookupString(local []byte, offset uint32) (string, bool) {
	if offset&commonStringFlag != 0 {
		s, ok := commonStrings[offset&^commonStringFlag]
		return s, ok
	}
	if int64(offset) >= int64(len(local)) {
		return "", false
	}
	end := int(offset)
	for end < len(local) && local[end] != 0 {
		end++
	}
	return string(local[offset:end]), true
}
